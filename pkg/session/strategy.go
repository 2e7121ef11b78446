package session

import (
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// Strategy fixes the pairwise negotiation roles for a session: who
// publishes the offer and whether the candidates trickle or ride
// bundled inside the description.
type Strategy interface {
	Name() string
	// Trickle reports whether candidates travel as separate records.
	Trickle() bool
	// Initiates reports whether the local side opens the pair.
	// existing tells that the remote was already in the room when the
	// local side joined.
	Initiates(local com.Uid, remote com.Uid, existing bool) bool
}

// Surfaced once per session right after the strategy settles.
const (
	NoticeMesh   = "You are on the meeting grid"
	NoticeSimple = "The meeting runs in compatibility mode"
)

// Mesh trickles candidates and assigns the roles by id order, the
// lower id initiates. The outcome is the same no matter which side
// joined first, so a pair never ends up with two crossing offers.
type Mesh struct{}

func (Mesh) Name() string  { return "mesh" }
func (Mesh) Trickle() bool { return true }
func (Mesh) Initiates(local com.Uid, remote com.Uid, _ bool) bool {
	return local.String() < remote.String()
}

// Simple bundles all candidates into the description and lets the
// newcomer initiate toward everyone already present, members answer.
type Simple struct{}

func (Simple) Name() string  { return "simple" }
func (Simple) Trickle() bool { return false }
func (Simple) Initiates(_ com.Uid, _ com.Uid, existing bool) bool {
	return existing
}

// ChooseStrategy probes the primary mesh construction once and, on
// any error, permanently selects simple for this session. One
// failure is enough, there is no health based re-selection later.
// The returned notice differs per outcome.
func ChooseStrategy(maker LinkMaker, log *logger.Logger) (Strategy, string) {
	conn, err := maker()
	if err != nil {
		log.Error().Err(err).Msg("mesh construction failed, falling back")
		return Simple{}, NoticeSimple
	}
	conn.Disconnect()
	return Mesh{}, NoticeMesh
}

// ForcedStrategy maps a configured name onto a strategy, empty or
// unknown names leave the probe to decide.
func ForcedStrategy(name string) Strategy {
	switch name {
	case "mesh":
		return Mesh{}
	case "simple":
		return Simple{}
	}
	return nil
}
