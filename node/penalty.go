package node

import (
	"math"

	"LinkFM/model"
)

// Penalty derives the ranking score for a stats snapshot. Lower is better.
// The score is deterministic for a given snapshot and strictly increasing in
// player count, CPU load and frame loss, so repeated rankings without fresh
// stats never reorder.
func Penalty(stats model.NodeStats) float64 {
	playerPenalty := float64(stats.PlayingPlayers)

	cpuPenalty := math.Pow(1.05, 100*stats.CPU.SystemLoad)*10 - 10

	var deficitPenalty, nullPenalty float64
	if fs := stats.FrameStats; fs != nil && fs.Sent > 0 {
		deficit := math.Abs(float64(fs.Deficit))
		nulled := math.Abs(float64(fs.Nulled))
		deficitPenalty = math.Pow(1.03, 500*deficit/3000)*600 - 600
		// Nulled frames indicate a struggling source rather than raw CPU
		// starvation; they weigh double.
		nullPenalty = (math.Pow(1.03, 500*nulled/3000)*300 - 300) * 2
	}

	return playerPenalty + cpuPenalty + deficitPenalty + nullPenalty
}

// FrameLossRatio is the fraction of frames lost over the stats window.
func FrameLossRatio(stats model.NodeStats) float64 {
	fs := stats.FrameStats
	if fs == nil {
		return 0
	}
	sent := float64(fs.Sent)
	if sent < 1 {
		sent = 1
	}
	return (math.Abs(float64(fs.Deficit)) + math.Abs(float64(fs.Nulled))) / sent
}
