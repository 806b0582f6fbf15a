package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
	"github.com/mr1hm/go-hazard-watch/internal/models"
)

const reportTableRows = 8

type Report struct {
	Markdown    string    `json:"report"`
	Stats       Stats     `json:"stats"`
	GeneratedAt time.Time `json:"generated_at"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// NationalReport writes a markdown situation report for senior officers.
func (s *Service) NationalReport(ctx context.Context) (Report, error) {
	stats, active, err := s.snapshot(ctx)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Stats: stats, GeneratedAt: s.clock.Now().UTC()}

	text, err := s.generateReport(ctx, stats, active)
	if err != nil {
		s.fellBack("report", err)
		rep.Markdown = FallbackReport(stats, active, rep.GeneratedAt)
		rep.Fallback = true
		return rep, nil
	}
	rep.Markdown = text
	return rep, nil
}

func (s *Service) generateReport(ctx context.Context, stats Stats, active []models.Incident) (string, error) {
	if len(active) > reportIncidentLimit {
		active = active[:reportIncidentLimit]
	}
	data, err := json.MarshalIndent(active, "", "  ")
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`You are the senior analyst at Kenya's National Disaster Management Authority (NDMA).
Generate a professional Situation Report (SitRep) for senior NDMA officers.

Current situation:
- Active disasters: %d
- Total affected people: %d
- Regions at high risk: %d
- Workers deployed: %d
- Workers available: %d

Active disasters:
%s

Write a professional markdown SitRep with sections:
1. Executive Summary
2. Active Incidents (table)
3. Resource Status
4. Immediate Actions Required
5. 72-Hour Outlook

Use ## for section headers. Be concise and professional.`,
		stats.ActiveIncidents, stats.TotalAffected, stats.HighRiskRegions,
		stats.DeployedWorkers, stats.AvailableWorkers, data)

	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = ai.StripFences(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty report", ai.ErrService)
	}
	return text, nil
}

// FallbackReport renders the report template from local data alone.
func FallbackReport(stats Stats, active []models.Incident, at time.Time) string {
	var b strings.Builder

	b.WriteString("## NDMA Kenya: National Situation Report\n")
	fmt.Fprintf(&b, "*Generated: %s*\n\n", at.UTC().Format("2006-01-02 15:04 UTC"))

	b.WriteString("## Executive Summary\n")
	fmt.Fprintf(&b, "There are currently **%d active disasters** across monitored regions.\n", stats.ActiveIncidents)
	fmt.Fprintf(&b, "Total estimated affected population: **%s people**.\n\n", groupThousands(stats.TotalAffected))

	b.WriteString("## Active Incidents\n")
	b.WriteString("| Region | Type | Severity | Affected |\n")
	b.WriteString("|--------|------|----------|----------|\n")
	for i, inc := range active {
		if i == reportTableRows {
			break
		}
		name := inc.RegionName
		if name == "" {
			name = inc.Location
		}
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", name, inc.Type, inc.Severity, groupThousands(inc.AffectedPeople))
	}
	b.WriteString("\n")

	b.WriteString("## Resource Status\n")
	fmt.Fprintf(&b, "- Workers deployed: %d\n", stats.DeployedWorkers)
	fmt.Fprintf(&b, "- Workers available: %d\n", stats.AvailableWorkers)
	fmt.Fprintf(&b, "- Regions at high risk: %d of %d monitored\n\n", stats.HighRiskRegions, stats.RegionsMonitored)

	b.WriteString("## Immediate Actions Required\n")
	b.WriteString("- Dispatch additional search-and-rescue teams to high-severity zones\n")
	b.WriteString("- Activate water trucking for drought-affected northern regions\n")
	b.WriteString("- Coordinate with Kenya Red Cross for medical supply replenishment\n\n")

	b.WriteString("## 72-Hour Outlook\n")
	b.WriteString("Continued monitoring of river basins for flooding due to upstream rainfall.\n")
	b.WriteString("*(Automated analysis unavailable; this report was generated from local data.)*\n")

	return b.String()
}

func groupThousands(n int) string {
	s := fmt.Sprint(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
