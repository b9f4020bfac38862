// Package assemble builds the bounded per-stage context object that prompt
// rendering consumes: course configuration, a quality distribution over the
// eligible resources, and best-effort retrieval snippets.
package assemble

import (
	"context"
	"strings"

	"github.com/courseforge/courseforge-backend/internal/clients/retrieval"
	"github.com/courseforge/courseforge-backend/internal/generation/parse"
	"github.com/courseforge/courseforge-backend/internal/generation/quality"
	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// GenerationContext is ephemeral: rebuilt per stage, owned by the running job
// for the duration of one execution, never persisted.
type GenerationContext struct {
	Course  types.CourseConfig
	Quality quality.Distribution
	// Queries preserves issue order so digests are deterministic.
	Queries  []string
	Snippets map[string][]retrieval.Snippet
}

type Options struct {
	TopK          int
	MinQuality    float64
	MaxObjectives int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MinQuality <= 0 {
		o.MinQuality = 0.5
	}
	if o.MaxObjectives <= 0 {
		o.MaxObjectives = 3
	}
	return o
}

type Assembler struct {
	log       *logger.Logger
	retriever retrieval.Client
	opts      Options
}

// New builds an Assembler. retriever may be nil, in which case contexts carry
// no snippets; retrieval is best-effort throughout.
func New(baseLog *logger.Logger, retriever retrieval.Client, opts Options) *Assembler {
	return &Assembler{
		log:       baseLog.With("component", "ContextAssembler"),
		retriever: retriever,
		opts:      opts.withDefaults(),
	}
}

// BuildCourseContext assembles the course-level context used by the outline
// and assessments stages. Queries are the course title plus its top
// objectives.
func (a *Assembler) BuildCourseContext(ctx context.Context, cfg types.CourseConfig, resources []*types.SourceResource) *GenerationContext {
	queries := []string{cfg.Title}
	objectives := cfg.Objectives
	if len(objectives) > a.opts.MaxObjectives {
		objectives = objectives[:a.opts.MaxObjectives]
	}
	for _, obj := range objectives {
		if strings.TrimSpace(obj) != "" {
			queries = append(queries, cfg.Title+" "+obj)
		}
	}
	return a.build(ctx, cfg, resources, queries)
}

// BuildSessionContext assembles the narrower context for one session-detail
// stage: session title plus its topics.
func (a *Assembler) BuildSessionContext(ctx context.Context, cfg types.CourseConfig, stub parse.SessionStub, resources []*types.SourceResource) *GenerationContext {
	query := stub.Title
	if len(stub.Topics) > 0 {
		query += " " + strings.Join(stub.Topics, " ")
	}
	return a.build(ctx, cfg, resources, []string{query})
}

func (a *Assembler) build(ctx context.Context, cfg types.CourseConfig, resources []*types.SourceResource, queries []string) *GenerationContext {
	gc := &GenerationContext{
		Course:   cfg,
		Quality:  quality.Distribute(resources),
		Snippets: map[string][]retrieval.Snippet{},
	}
	if a.retriever == nil {
		return gc
	}
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		snippets, err := a.retriever.Retrieve(ctx, q, retrieval.Options{
			TopK:       a.opts.TopK,
			MinQuality: a.opts.MinQuality,
		})
		if err != nil {
			// Retrieval is best-effort: log and omit this query's entry.
			a.log.Warn("Retrieval query failed; omitting from context", "query", q, "error", err)
			continue
		}
		if len(snippets) > 0 {
			gc.Queries = append(gc.Queries, q)
			gc.Snippets[q] = snippets
		}
	}
	return gc
}

// SnippetDigest flattens the retrieved snippets into a prompt-ready excerpt
// block, bounded to maxChars.
func (gc *GenerationContext) SnippetDigest(maxChars int) string {
	if maxChars <= 0 {
		maxChars = 4000
	}
	var b strings.Builder
	for _, query := range gc.Queries {
		for _, s := range gc.Snippets[query] {
			line := "[" + query + "] " + strings.TrimSpace(s.Text) + "\n"
			if b.Len()+len(line) > maxChars {
				return b.String()
			}
			b.WriteString(line)
		}
	}
	return b.String()
}
