package domain

import "fmt"

// Level is the resolved position of a totalXp value in the level catalog.
type Level struct {
	Number   int
	Title    string
	Color    string
	XPToNext int64
}

// LevelDefinition is one row of the static level catalog.
type LevelDefinition struct {
	Number    int
	Threshold int64
	Title     string
	Color     string
}

// LevelCatalog is the ordered level table. It is authored in code, validated
// once at startup, and treated as immutable afterwards.
type LevelCatalog struct {
	levels []LevelDefinition
}

// NewLevelCatalog validates the table and returns the catalog. Validation
// failures are authoring-time defects and abort startup.
func NewLevelCatalog(levels []LevelDefinition) (*LevelCatalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("level catalog is empty")
	}
	if levels[0].Threshold != 0 {
		return nil, fmt.Errorf("level catalog: first threshold must be 0, got %d", levels[0].Threshold)
	}
	for i, def := range levels {
		if def.Number != i+1 {
			return nil, fmt.Errorf("level catalog: expected level %d at position %d, got %d", i+1, i, def.Number)
		}
		if def.Title == "" || def.Color == "" {
			return nil, fmt.Errorf("level catalog: level %d missing title or color", def.Number)
		}
		if i > 0 && def.Threshold <= levels[i-1].Threshold {
			return nil, fmt.Errorf("level catalog: threshold for level %d (%d) not above level %d (%d)",
				def.Number, def.Threshold, levels[i-1].Number, levels[i-1].Threshold)
		}
	}
	return &LevelCatalog{levels: levels}, nil
}

// LevelFor resolves totalXp to the highest level whose threshold has been
// reached. Pure lookup; two equal totalXp values always resolve identically.
func (c *LevelCatalog) LevelFor(totalXP int64) Level {
	if totalXP < 0 {
		totalXP = 0
	}
	idx := 0
	for i, def := range c.levels {
		if totalXP >= def.Threshold {
			idx = i
		} else {
			break
		}
	}
	def := c.levels[idx]
	var toNext int64
	if idx+1 < len(c.levels) {
		toNext = c.levels[idx+1].Threshold - totalXP
	}
	return Level{Number: def.Number, Title: def.Title, Color: def.Color, XPToNext: toNext}
}

// MaxLevel returns the top level number of the catalog.
func (c *LevelCatalog) MaxLevel() int { return c.levels[len(c.levels)-1].Number }

// DefaultLevels is the production level table, levels 1 through 20.
func DefaultLevels() []LevelDefinition {
	return []LevelDefinition{
		{Number: 1, Threshold: 0, Title: "Tadpole", Color: "#94a3b8"},
		{Number: 2, Threshold: 100, Title: "Minnow", Color: "#a8b8c8"},
		{Number: 3, Threshold: 250, Title: "Goldfish", Color: "#fbbf24"},
		{Number: 4, Threshold: 500, Title: "Pond Swimmer", Color: "#86efac"},
		{Number: 5, Threshold: 850, Title: "Lap Regular", Color: "#4ade80"},
		{Number: 6, Threshold: 1300, Title: "Streamliner", Color: "#34d399"},
		{Number: 7, Threshold: 1900, Title: "Wave Rider", Color: "#2dd4bf"},
		{Number: 8, Threshold: 2650, Title: "Current Breaker", Color: "#22d3ee"},
		{Number: 9, Threshold: 3550, Title: "Deep Diver", Color: "#38bdf8"},
		{Number: 10, Threshold: 4600, Title: "Tide Turner", Color: "#60a5fa"},
		{Number: 11, Threshold: 5850, Title: "Channel Crosser", Color: "#818cf8"},
		{Number: 12, Threshold: 7300, Title: "Reef Ranger", Color: "#a78bfa"},
		{Number: 13, Threshold: 9000, Title: "Open Water Ace", Color: "#c084fc"},
		{Number: 14, Threshold: 11000, Title: "Marlin", Color: "#e879f9"},
		{Number: 15, Threshold: 13350, Title: "Barracuda", Color: "#f472b6"},
		{Number: 16, Threshold: 16100, Title: "Orca", Color: "#fb7185"},
		{Number: 17, Threshold: 19300, Title: "Abyssal Voyager", Color: "#f87171"},
		{Number: 18, Threshold: 23000, Title: "Maelstrom", Color: "#fb923c"},
		{Number: 19, Threshold: 27250, Title: "Leviathan", Color: "#facc15"},
		{Number: 20, Threshold: 32100, Title: "Kraken", Color: "#fde047"},
	}
}
