// 包 cluster：按屏幕像素位置对地图标注做空间哈希聚合
package cluster

import (
	"math"
	"sort"

	"route-api/internal/coord"
)

// Item：参与聚合的标注；Coordinate 只用于标识与合法性校验，不参与分桶
type Item struct {
	Key        string           `json:"key"`
	Coordinate coord.Coordinate `json:"coordinate"`
}

// Point：屏幕像素坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cluster：同一网格内的标注，Anchor 为成员像素位置的质心
type Cluster struct {
	Members []string `json:"members"`
	Anchor  Point    `json:"anchor"`
}

type cell struct{ x, y int64 }

// 文档注释：空间哈希聚合
// 背景：以 floor(x/bucket)、floor(y/bucket) 为网格键单遍分组，落在同一网格的标注合为一个聚合；
// 相邻网格的标注即使距离很近也不合并。
// 约束：缺少像素位置、像素非有限值或地理坐标非法的标注被跳过；重复 Key 只保留首次出现；
// bucketSize<=0 时每个标注单独成组。输出按首个成员在输入中的顺序排列。
func Build(items []Item, points map[string]Point, bucketSize float64) []Cluster {
	index := map[cell]int{}
	seen := map[string]struct{}{}
	var out []Cluster
	var sums []Point
	for _, it := range items {
		if _, dup := seen[it.Key]; dup {
			continue
		}
		p, ok := points[it.Key]
		if !ok || !finite(p) || !it.Coordinate.Valid() {
			continue
		}
		seen[it.Key] = struct{}{}
		var c cell
		if bucketSize > 0 {
			c = cell{x: int64(math.Floor(p.X / bucketSize)), y: int64(math.Floor(p.Y / bucketSize))}
		} else {
			c = cell{x: int64(len(out)), y: math.MinInt64}
		}
		i, ok := index[c]
		if !ok {
			i = len(out)
			index[c] = i
			out = append(out, Cluster{})
			sums = append(sums, Point{})
		}
		out[i].Members = append(out[i].Members, it.Key)
		sums[i].X += p.X
		sums[i].Y += p.Y
	}
	for i := range out {
		n := float64(len(out[i].Members))
		out[i].Anchor = Point{X: sums[i].X / n, Y: sums[i].Y / n}
	}
	return out
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Sizes：各聚合成员数，降序
func Sizes(cs []Cluster) []int {
	out := make([]int, len(cs))
	for i, c := range cs {
		out[i] = len(c.Members)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
