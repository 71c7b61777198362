package executor

import "sync"

// SignalLedger tracks simulated outcomes so signal quality can be judged
// without touching capital. Purely diagnostic and never persisted.
type SignalLedger struct {
	mu       sync.Mutex
	totalPnl float64
	trades   int
	wins     int
}

func (l *SignalLedger) Record(pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalPnl += pnl
	l.trades++
	if pnl > 0 {
		l.wins++
	}
}

func (l *SignalLedger) Stats() (totalPnl float64, trades int, winRate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.trades > 0 {
		winRate = float64(l.wins) / float64(l.trades) * 100
	}
	return l.totalPnl, l.trades, winRate
}
