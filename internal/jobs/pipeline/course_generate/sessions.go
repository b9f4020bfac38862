package course_generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/courseforge/courseforge-backend/internal/generation/parse"
	"github.com/courseforge/courseforge-backend/internal/generation/prompts"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// stageSessions expands every outline stub into a full session detail and
// persists the results. Expansion runs in batches of SessionFanout concurrent
// calls with a delay between batches to stay under provider rate limits.
// Every stub must yield a detail; a single failed expansion fails the stage.
func (p *Pipeline) stageSessions(st *runState) error {
	total := len(st.outline.Sessions)
	p.progress(st, "sessions", 40, fmt.Sprintf("Expanding %d sessions", total))

	st.details = make([]*parse.SessionDetail, total)
	fanout := p.tuning.SessionFanout

	for start := 0; start < total; start += fanout {
		end := start + fanout
		if end > total {
			end = total
		}

		g, gctx := errgroup.WithContext(st.ctx)
		g.SetLimit(fanout)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				detail, err := p.expandSession(gctx, st, i)
				if err != nil {
					return fmt.Errorf("session %d: %w", i+1, err)
				}
				st.details[i] = detail
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		st.jobCtx.Heartbeat()
		done := end
		pct := 40 + done*30/total
		p.progress(st, "sessions", pct, fmt.Sprintf("Expanded %d of %d sessions", done, total))

		if end < total && p.tuning.InterBatchDelay > 0 {
			select {
			case <-st.ctx.Done():
				return st.ctx.Err()
			case <-time.After(p.tuning.InterBatchDelay):
			}
		}
	}

	return p.persistSessions(st)
}

func (p *Pipeline) expandSession(ctx context.Context, st *runState, idx int) (*parse.SessionDetail, error) {
	stub := st.outline.Sessions[idx]
	sessionCtx := p.assembler.BuildSessionContext(ctx, st.config, stub, st.eligible)

	vars := map[string]string{
		"title":              st.config.Title,
		"level":              st.config.Level,
		"position":           strconv.Itoa(idx + 1),
		"session_title":      stub.Title,
		"session_topics":     strings.Join(stub.Topics, ", "),
		"session_objectives": bulletList(stub.Objectives),
		"excerpts":           sessionCtx.SnippetDigest(0),
	}

	obj, err := p.completeStage(ctx, st, prompts.StageSessionDetail, vars, p.tuning.MaxSessionTokens)
	if err != nil {
		return nil, err
	}
	detail, err := parse.DecodeSessionDetail(obj)
	if err != nil {
		return nil, err
	}

	// Fill gaps from the outline stub so a sparse detail still persists
	// something coherent.
	if detail.Title == "" || detail.Title == "Untitled session" {
		detail.Title = stub.Title
	}
	if len(detail.Topics) == 0 {
		detail.Topics = stub.Topics
	}
	if len(detail.Objectives) == 0 {
		detail.Objectives = stub.Objectives
	}
	if detail.DurationMinutes <= 0 {
		detail.DurationMinutes = stub.DurationMinutes
	}
	return detail, nil
}

// persistSessions upserts one row per outline position and trims rows beyond
// the new outline's length, so a regeneration that shrinks the course leaves
// no orphans.
func (p *Pipeline) persistSessions(st *runState) error {
	rows := make([]*types.CourseSession, 0, len(st.details))
	for i, detail := range st.details {
		if detail == nil {
			return fmt.Errorf("session %d produced no detail", i+1)
		}
		rows = append(rows, &types.CourseSession{
			CourseID:        st.courseID,
			Position:        i + 1,
			Title:           detail.Title,
			Topics:          mustJSON(detail.Topics),
			Objectives:      mustJSON(detail.Objectives),
			DurationMinutes: detail.DurationMinutes,
			Overview:        detail.Overview,
			Activities:      mustJSON(detail.Activities),
			Materials:       mustJSON(detail.Materials),
		})
	}
	if err := p.sessionRepo.UpsertByPosition(p.dbc(st), rows); err != nil {
		return fmt.Errorf("persist sessions: %w", err)
	}
	if err := p.sessionRepo.DeleteBeyondPosition(p.dbc(st), st.courseID, len(rows)); err != nil {
		return fmt.Errorf("trim stale sessions: %w", err)
	}
	return nil
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
