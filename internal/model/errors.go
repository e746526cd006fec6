package model

import "errors"

var ErrCanceled = errors.New("resolution canceled")
var ErrNotFound = errors.New("requested record not found")
var ErrTooFewWaypoints = errors.New("at least two waypoints are required")
var ErrNoResult = errors.New("no result")
var ErrInvalidCoordinate = errors.New("coordinate out of range")

// ErrNoOptimizer indicates the store was built without a route optimizer.
var ErrNoOptimizer = errors.New("route optimizer unavailable")
