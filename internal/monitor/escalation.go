package monitor

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/owl/internal/config"
)

// TeamObservation is the per-tick verdict on a supervisor's team.
type TeamObservation int

const (
	// TeamActive means at least one team agent was observed non-idle.
	TeamActive TeamObservation = iota
	// TeamIdle means every team agent classified IDLE or FRESH.
	TeamIdle
	// TeamUnknown means the tick could not observe the whole team
	// (capture failure). The episode neither accumulates nor resets.
	TeamUnknown
)

// episode tracks one continuous stretch of team idleness.
type episode struct {
	idleSince time.Time
	// firedMax is the highest tier threshold already fired this
	// episode, so each tier fires at most once.
	firedMax int
}

// escalator applies the tier table to per-supervisor idle episodes.
type escalator struct {
	tiers    []config.EscalationTier
	episodes map[string]*episode
}

func newEscalator(tiers []config.EscalationTier) *escalator {
	e := &escalator{episodes: make(map[string]*episode)}
	e.setTiers(tiers)
	return e
}

// setTiers swaps the tier table, keeping episodes intact. Used by
// config hot reload.
func (e *escalator) setTiers(tiers []config.EscalationTier) {
	sorted := make([]config.EscalationTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ThresholdMin < sorted[j].ThresholdMin
	})
	e.tiers = sorted
}

// observe folds one tick's verdict into the supervisor's episode and
// returns the tiers that should fire now, in ascending order. A tier
// fires exactly once per episode; a kill tier ends the episode.
func (e *escalator) observe(supervisor string, obs TeamObservation, now time.Time) []config.EscalationTier {
	switch obs {
	case TeamActive:
		delete(e.episodes, supervisor)
		return nil
	case TeamUnknown:
		return nil
	}

	ep, ok := e.episodes[supervisor]
	if !ok {
		ep = &episode{idleSince: now}
		e.episodes[supervisor] = ep
		return nil
	}

	elapsed := now.Sub(ep.idleSince)
	var fire []config.EscalationTier
	for _, tier := range e.tiers {
		if tier.ThresholdMin <= ep.firedMax {
			continue
		}
		if elapsed < time.Duration(tier.ThresholdMin)*time.Minute {
			break
		}
		fire = append(fire, tier)
		ep.firedMax = tier.ThresholdMin
		if tier.Action == config.ActionKill {
			delete(e.episodes, supervisor)
			break
		}
	}
	return fire
}

// expandTemplate fills the {minutes} placeholder in a tier template.
func expandTemplate(template string, minutes int) string {
	return strings.ReplaceAll(template, "{minutes}", strconv.Itoa(minutes))
}
