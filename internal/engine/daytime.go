package engine

// DaytimeWindow splits the day into day and night hours. From is
// inclusive, To exclusive.
type DaytimeWindow struct {
	From int
	To   int
}

// DefaultDaytime is the standard residential day span.
var DefaultDaytime = DaytimeWindow{From: 7, To: 21}

// IsDaytime reports whether hour falls inside the window.
func (w DaytimeWindow) IsDaytime(hour int) bool {
	return hour >= w.From && hour < w.To
}
