package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkBreakthrough BookmarkType = "breakthrough"
	BookmarkStagnation   BookmarkType = "stagnation"
	BookmarkCollapse     BookmarkType = "collapse"
	BookmarkConverged    BookmarkType = "converged"
)

// Bookmark marks a notable iteration of an optimization run.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Iteration   int          `csv:"iteration"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"iteration", b.Iteration,
		"description", b.Description,
	)
}

// BookmarkDetector watches the progress stream for notable iterations.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []Progress
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	seen             bool
	prevBest         float64
	sinceImprovement int     // iterations without a new best
	recentMeanPeak   float64 // peak generation mean since the last collapse
	converged        bool
}

// NewBookmarkDetector creates a detector with the given history size. The history
// size is also the number of flat iterations reported as stagnation.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5
	}
	return &BookmarkDetector{
		history:     make([]Progress, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest progress and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(p Progress) []Bookmark {
	var bookmarks []Bookmark

	if bd.seen {
		// Breakthrough: best jumps by more than twice the typical population spread
		if b := bd.checkBreakthrough(p); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Stagnation: no new best for a full history window
		if b := bd.checkStagnation(p); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Collapse: generation mean falls well below its recent peak
		if b := bd.checkCollapse(p); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	// Converged: the population has lost its spread
	if b := bd.checkConverged(p); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(p)

	if !bd.seen || p.GenMean > bd.recentMeanPeak {
		bd.recentMeanPeak = p.GenMean
	}
	bd.prevBest = p.BestFitness
	bd.seen = true

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(p Progress) {
	bd.history[bd.historyIdx] = p
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []Progress {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) meanSpread() float64 {
	history := bd.getHistory()
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, h := range history {
		sum += h.GenStd
	}
	return sum / float64(len(history))
}

func (bd *BookmarkDetector) checkBreakthrough(p Progress) *Bookmark {
	if len(bd.getHistory()) < 3 {
		return nil
	}
	gain := p.BestFitness - bd.prevBest
	spread := bd.meanSpread()
	if gain <= 0 || spread == 0 {
		return nil
	}

	if gain > 2*spread {
		return &Bookmark{
			Type:        BookmarkBreakthrough,
			Iteration:   p.Iteration,
			Description: fmt.Sprintf("Best rose %.3f to %.3f, %.1fx mean spread (%.3f)", gain, p.BestFitness, gain/spread, spread),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkStagnation(p Progress) *Bookmark {
	if p.BestFitness > bd.prevBest {
		bd.sinceImprovement = 0
		return nil
	}
	bd.sinceImprovement++

	if bd.sinceImprovement == bd.historySize { // trigger once per plateau
		return &Bookmark{
			Type:        BookmarkStagnation,
			Iteration:   p.Iteration,
			Description: fmt.Sprintf("Best %.3f unchanged for %d iterations", p.BestFitness, bd.sinceImprovement),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkCollapse(p Progress) *Bookmark {
	spread := bd.meanSpread()
	if spread == 0 {
		return nil
	}

	drop := bd.recentMeanPeak - p.GenMean
	if drop > 3*spread {
		oldPeak := bd.recentMeanPeak
		// Reset the peak after triggering
		bd.recentMeanPeak = p.GenMean

		return &Bookmark{
			Type:        BookmarkCollapse,
			Iteration:   p.Iteration,
			Description: fmt.Sprintf("Generation mean fell from %.3f to %.3f", oldPeak, p.GenMean),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkConverged(p Progress) *Bookmark {
	tight := p.GenStd <= 1e-6*math.Max(1, math.Abs(p.GenMean))
	if !tight {
		bd.converged = false
		return nil
	}
	if bd.converged {
		return nil
	}
	bd.converged = true

	return &Bookmark{
		Type:        BookmarkConverged,
		Iteration:   p.Iteration,
		Description: fmt.Sprintf("Population spread %.2g at mean %.3f", p.GenStd, p.GenMean),
	}
}
