package game

import "sort"

// LeaderboardEntry is one row of the match scoreboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Score    int    `json:"score"`
}

// leaderboardScore weights kills against deaths for ranking.
func leaderboardScore(kills, deaths int) int {
	return kills*100 - deaths*10
}

// BuildLeaderboard ranks player snapshots by score, then kills, then
// fewest deaths, with player id as the deterministic final tie-break.
func BuildLeaderboard(players []PlayerSnapshot) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Kills:    p.Kills,
			Deaths:   p.Deaths,
			Score:    leaderboardScore(p.Kills, p.Deaths),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		if a.Deaths != b.Deaths {
			return a.Deaths < b.Deaths
		}
		return a.PlayerID < b.PlayerID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
