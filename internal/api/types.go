package api

import (
	"github.com/google/uuid"

	"route-api/internal/cluster"
	"route-api/internal/coord"
	"route-api/internal/model"
)

// 文档注释：航点展示结构（对外）
// 背景：在航点原始字段之外附带展示坐标、完成与锁定状态，前端无需再次换算。
// 约束：Display 为 GCJ-02；字段新增需评估前端兼容性。
type waypointView struct {
	model.Waypoint
	Key       string           `json:"key"`
	Display   coord.Coordinate `json:"display"`
	Completed bool             `json:"completed"`
	Locked    bool             `json:"locked"`
}

type modeRequest struct {
	TransportMode string `json:"transportMode,omitempty"`
	TravelMode    string `json:"travelMode,omitempty"`
}

// adjustRequest：System 为空表示目标已是 GCJ-02 的人工校准；非空时按已知坐标处理
type adjustRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	System    string  `json:"system,omitempty"`
	Lock      bool    `json:"lock,omitempty"`
}

type restoreRequest struct {
	RecordID uuid.UUID `json:"recordId"`
}

type clusterRequest struct {
	Items      []cluster.Item           `json:"items"`
	Points     map[string]cluster.Point `json:"points"`
	BucketSize float64                  `json:"bucketSize"`
}

type errorBody struct {
	Error string `json:"error"`
}
