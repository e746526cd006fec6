package amap

import (
	"context"
	"net/url"

	"route-api/internal/coord"
)

type geocodeResponse struct {
	envelope
	Count    string `json:"count"`
	Geocodes []struct {
		FormattedAddress string `json:"formatted_address"`
		City             any    `json:"city"`
		Location         string `json:"location"`
		Level            string `json:"level"`
	} `json:"geocodes"`
}

// 文档注释：地名地理编码（v3/geocode/geo）
// 背景：city 为空时不限定城市；返回的 location 为 GCJ-02。
// 返回：按高德返回顺序的坐标列表，无结果时为空切片且无错误。
func (c *Client) Search(ctx context.Context, name, city string) ([]coord.Coordinate, error) {
	q := url.Values{}
	q.Set("address", name)
	if city != "" {
		q.Set("city", city)
	}
	var r geocodeResponse
	if err := c.get(ctx, "/v3/geocode/geo", q, &r); err != nil {
		return nil, err
	}
	out := make([]coord.Coordinate, 0, len(r.Geocodes))
	for _, g := range r.Geocodes {
		if p, ok := parseLonLat(g.Location); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
