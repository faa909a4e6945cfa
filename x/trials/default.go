package trials

// Default returns the seven built-in trials.
func Default() *Catalog {
	c, err := New(builtin(), false)
	if err != nil {
		panic(err)
	}
	return c
}

func builtin() []Trial {
	return []Trial{
		{
			Index:       1,
			ID:          "thronebreaker",
			Name:        "Thronebreaker Protocol",
			Description: "Shoot the wrong answers, avoid the correct ones",
			Accept:      []string{"thronebreaker_complete"},
			Prefixes:    []string{"THRONEBREAKER:"},
		},
		{
			Index:       2,
			ID:          "colorsigil",
			Name:        "Color Sigil Memory",
			Description: "Remember and repeat the color sequence",
			Accept:      []string{"colorsigil_complete"},
			Prefixes:    []string{"COLORSIGIL:"},
		},
		{
			Index:       3,
			ID:          "patteroracle",
			Name:        "Pattern Oracle",
			Description: "Complete the pattern sequence",
			Accept:      []string{"patteroracle_complete"},
			Prefixes:    []string{"PATTERN:"},
		},
		{
			Index:       4,
			ID:          "ciphergrid",
			Name:        "Cipher Grid",
			Description: "Solve the cipher puzzle",
			Accept:      []string{"ciphergrid_complete"},
			Prefixes:    []string{"CIPHER:"},
		},
		{
			Index:       5,
			ID:          "logiclabyrinth",
			Name:        "Logic Labyrinth",
			Description: "Navigate the logic gates",
			Accept:      []string{"logiclabyrinth_complete"},
			Prefixes:    []string{"LOGIC:"},
		},
		{
			Index:       6,
			ID:          "memoryofcrowns",
			Name:        "Memory of Crowns",
			Description: "Remember the royal symbols",
			Accept:      []string{"memoryofcrowns_complete"},
			Prefixes:    []string{"MEMORY:"},
		},
		{
			Index:       7,
			ID:          "hiddensigil",
			Name:        "Hidden Sigil",
			Description: "Discover the hidden sigil",
			Accept:      []string{"hiddensigil_complete"},
			Prefixes:    []string{"HIDDEN:"},
		},
	}
}
