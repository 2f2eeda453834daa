// README: Geographic point value object.
package types

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
