package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"casino-engine/internal/games"
	"casino-engine/internal/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type liveRound struct {
	stop chan struct{}
	once sync.Once
}

func (r *liveRound) close() {
	r.once.Do(func() { close(r.stop) })
}

// startRound drives a live crash bet: it streams the rising multiplier and
// completes the bet itself once the round crashes or reaches a preset
// cash-out target.
func (ge *GameEngine) startRound(bet *models.Bet, crashPoint decimal.Decimal) {
	end, crashes := crashPoint, true
	var p games.CrashParams
	if err := json.Unmarshal(bet.Params, &p); err == nil && p.Cashout != nil && p.Cashout.LessThan(crashPoint) {
		end, crashes = *p.Cashout, false
	}

	round := &liveRound{stop: make(chan struct{})}
	ge.live.Store(bet.ID, round)

	ge.rounds.Add(1)
	go ge.runCrashRound(bet.ID, bet.UserID, bet.CreatedAt, ge.crash.ElapsedAt(end), crashPoint, crashes, round)
}

func (ge *GameEngine) runCrashRound(betID string, userID int64, startedAt time.Time, deadline time.Duration, crashPoint decimal.Decimal, crashes bool, round *liveRound) {
	defer ge.rounds.Done()

	ticker := time.NewTicker(ge.cfg.CrashTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			elapsed := ge.now().Sub(startedAt)
			if elapsed < deadline {
				ge.broadcaster.BroadcastGameUpdate(betID, userID, ge.crash.MultiplierAt(elapsed))
				continue
			}

			if crashes {
				ge.broadcaster.BroadcastGameCrash(betID, userID, crashPoint)
			}

			timeout := ge.cfg.StoreTimeout * time.Duration(ge.cfg.SettleRetries+2)
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			_, err := ge.CompleteBet(ctx, betID)
			cancel()
			if err != nil && !errors.Is(err, models.ErrResolutionConflict) {
				log.WithError(err).WithField("bet_id", betID).Error("Failed to complete live crash round")
			}
			return
		case <-round.stop:
			return
		}
	}
}

func (ge *GameEngine) stopRound(betID string) {
	if v, ok := ge.live.LoadAndDelete(betID); ok {
		v.(*liveRound).close()
	}
}

// Shutdown stops every live round runner and waits for them to exit. Bets
// they leave open are picked up by the stale sweeper.
func (ge *GameEngine) Shutdown() {
	ge.live.Range(func(key, _ interface{}) bool {
		ge.stopRound(key.(string))
		return true
	})
	ge.rounds.Wait()
}
