package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/evergreen/pkg/evergreen"
)

const previewRunes = 160

var (
	heading = color.New(color.FgCyan, color.Bold)
	dim     = color.New(color.FgHiBlack)
)

func queryCommand(c *cli.Context) error {
	text, err := requireArg(c, "text")
	if err != nil {
		return err
	}
	filters, err := parseFilters(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	opts := []evergreen.QueryOption{evergreen.TopK(c.Int("top-k"))}
	for key, value := range filters {
		opts = append(opts, evergreen.Filter(key, value))
	}
	if c.Bool("no-graph") {
		opts = append(opts, evergreen.SkipGraph())
	}
	if c.Bool("no-synthesis") {
		opts = append(opts, evergreen.SkipSynthesis())
	}

	client, tenant, err := openTenant(c)
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := tenant.Query(c.Context, text, opts...)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

// parseFilters turns key=value pairs into a filter map. A repeated key
// becomes a match-any list.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	grouped := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", p)
		}
		grouped[key] = append(grouped[key], strings.TrimSpace(value))
	}

	filters := make(map[string]any, len(grouped))
	for key, values := range grouped {
		if len(values) == 1 {
			filters[key] = values[0]
		} else {
			filters[key] = values
		}
	}
	return filters, nil
}

func printResult(res evergreen.QueryResult) {
	if res.Answer != "" {
		heading.Println("Answer")
		fmt.Println(res.Answer)
		fmt.Println()
	}
	fmt.Printf("Confidence: %s\n", confidenceString(res.Confidence))
	if res.Reasoning != "" {
		dim.Printf("Reasoning: %s\n", res.Reasoning)
	}

	if len(res.Sources) > 0 {
		fmt.Println()
		heading.Println("Sources")
		for i, s := range res.Sources {
			score := fmt.Sprintf("%.3f", s.Score)
			if s.RerankScore != nil {
				score += fmt.Sprintf(" / rerank %.3f", *s.RerankScore)
			}
			fmt.Printf("[%d] %s %s\n", i+1, color.YellowString(score), dim.Sprint(s.DocumentID))
			fmt.Printf("    %s\n", preview(s.Content))
		}
	}

	if len(res.Entities) > 0 {
		fmt.Println()
		heading.Println("Entities")
		for _, e := range res.Entities {
			fmt.Printf("  %s %s\n", color.GreenString(e.Name), dim.Sprintf("(%s)", e.Type))
		}
	}
}

func confidenceString(c float64) string {
	s := fmt.Sprintf("%.2f", c)
	switch {
	case c >= 0.7:
		return color.GreenString(s)
	case c >= 0.4:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewRunes {
		return content
	}
	return string(runes[:previewRunes]) + "…"
}

func entityCommand(c *cli.Context) error {
	name, err := requireArg(c, "name")
	if err != nil {
		return err
	}

	client, tenant, err := openTenant(c)
	if err != nil {
		return err
	}
	defer client.Close()

	ec, err := tenant.EntityContext(c.Context, name, evergreen.EntityType(c.String("type")))
	if err != nil {
		return err
	}
	if !ec.Found {
		color.Yellow("No entity named %q", name)
		return nil
	}

	heading.Printf("%s ", ec.Entity.Name)
	dim.Printf("(%s, seen %d times)\n", ec.Entity.Type, ec.Entity.MentionCount)

	names := make(map[string]string, len(ec.RelatedNodes)+1)
	names[ec.Entity.ID] = ec.Entity.Name
	for _, n := range ec.RelatedNodes {
		names[n.ID] = n.Name
	}
	if len(ec.Relationships) > 0 {
		fmt.Println()
		heading.Println("Relationships")
		for _, r := range ec.Relationships {
			fmt.Printf("  %s %s %s\n",
				color.GreenString(nameOr(names, r.SourceEntityID)),
				color.YellowString(r.RelationType),
				color.GreenString(nameOr(names, r.TargetEntityID)),
			)
		}
	}
	if len(ec.DocumentIDs) > 0 {
		fmt.Println()
		heading.Println("Documents")
		for _, id := range ec.DocumentIDs {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func statsCommand(c *cli.Context) error {
	client, tenant, err := openTenant(c)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := tenant.Stats(c.Context)
	if err != nil {
		return err
	}
	heading.Printf("Tenant %s\n", st.Tenant)
	fmt.Printf("  documents      %d\n", st.Documents)
	fmt.Printf("  chunks         %d\n", st.Chunks)
	fmt.Printf("  entities       %d\n", st.Entities)
	fmt.Printf("  relationships  %d\n", st.Relationships)
	fmt.Printf("  dimensions     %d\n", st.Dimensions)
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := requireArg(c, "doc-id")
	if err != nil {
		return err
	}

	client, tenant, err := openTenant(c)
	if err != nil {
		return err
	}
	defer client.Close()

	del, err := tenant.Delete(c.Context, id)
	if err != nil {
		return err
	}
	color.Green("✓ Deleted %s: %d chunks, %d entity mentions", del.DocumentID, del.Chunks, del.Mentions)
	return nil
}
