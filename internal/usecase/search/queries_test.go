package search

import (
	"strings"
	"testing"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

func TestPhase1Queries(t *testing.T) {
	intent := domain.SearchIntent{Location: "蒙自", FoodType: "米线", Requirements: []string{"便宜", "停车方便", "不排队"}}

	queries := phase1Queries(intent)
	if len(queries) != 3 {
		t.Fatalf("got %d queries, want 3", len(queries))
	}
	for _, q := range queries {
		if !strings.HasPrefix(q, "蒙自 ") {
			t.Errorf("query %q missing location prefix", q)
		}
	}
	if queries[1] != "蒙自 米线 地道" {
		t.Errorf("queries[1] = %q", queries[1])
	}
}

func TestPhase1QueriesDefaultsFoodType(t *testing.T) {
	queries := phase1Queries(domain.SearchIntent{Location: "蒙自"})
	if queries[1] != "蒙自 美食 地道" {
		t.Errorf("queries[1] = %q", queries[1])
	}
}

func TestPhase3Queries(t *testing.T) {
	names := []string{"老面馆", "张记米线店", "小馆子", "王家菜馆", "李记店"}
	queries := phase3Queries("蒙自", names)
	want := []string{
		"蒙自 老面馆 张记米线店",
		"蒙自 小馆子 王家菜馆",
		"蒙自 李记店",
	}
	if len(queries) != len(want) {
		t.Fatalf("got %v", queries)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Errorf("queries[%d] = %q, want %q", i, queries[i], want[i])
		}
	}
}

func TestPhase4QueriesSkipsGenericFoodType(t *testing.T) {
	if q := phase4Queries(domain.SearchIntent{Location: "蒙自"}); q != nil {
		t.Errorf("empty food type: got %v", q)
	}
	if q := phase4Queries(domain.SearchIntent{Location: "蒙自", FoodType: "美食"}); q != nil {
		t.Errorf("generic food type: got %v", q)
	}
	q := phase4Queries(domain.SearchIntent{Location: "蒙自", FoodType: "米线"})
	if len(q) != 2 {
		t.Fatalf("got %v", q)
	}
}

func TestExtractShopNames(t *testing.T) {
	docs := []domain.SourceDocument{
		{Title: "蒙自必吃｜张记米线店 本地人排队"},
		{Title: "这家小馆子绝了 老城区的宝藏"},
		{Title: "店"},                  // single rune, too short
		{Title: "没有相关后缀的标题"},          // no suffix character
		{Title: "张记米线店 又来一次"},         // duplicate, ignored
		{Title: "一二三四五六七八九十店 太长不收录 A"}, // over 10 runes
	}

	names := extractShopNames(docs)
	want := []string{"张记米线店", "这家小馆子绝了"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestExtractShopNamesCap(t *testing.T) {
	var docs []domain.SourceDocument
	for _, n := range []string{"一店", "二店", "三店", "四店", "五店", "六店", "七店", "八店"} {
		docs = append(docs, domain.SourceDocument{Title: n + " 推荐"})
	}
	if names := extractShopNames(docs); len(names) != maxPhase3Names {
		t.Fatalf("got %d names, want %d", len(names), maxPhase3Names)
	}
}
