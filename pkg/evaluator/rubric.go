package evaluator

// Category is one weighted dimension of the evaluation rubric.
type Category struct {
	Name        string
	Weight      int
	Description string
	Criteria    []string
}

// Rubric is an ordered, weighted set of categories whose weights sum to 100.
type Rubric struct {
	ID         string
	Categories []Category
}

// PassThreshold is the score at or above which a Verdict is considered
// passing, independent of which rubric produced it.
const PassThreshold = 70

// DefaultRubric mirrors the weighting used across every run unless a task
// supplies its own: functionality and visual design carry the most weight,
// reflecting that a working, good-looking build matters more than polish on
// the margins (accessibility, responsiveness, robustness).
var DefaultRubric = Rubric{
	ID: "default-v1",
	Categories: []Category{
		{
			Name:        "functionality",
			Weight:      25,
			Description: "Core features work as expected",
			Criteria: []string{
				"All interactive elements are functional",
				"Buttons, links, and forms work correctly",
				"User workflows complete successfully",
				"No JavaScript errors in console",
			},
		},
		{
			Name:        "visual_design",
			Weight:      25,
			Description: "Visual design is modern, polished, and professional",
			Criteria: []string{
				"Modern aesthetic, not bare default HTML",
				"Professional color scheme and typography",
				"Proper spacing, padding, and visual rhythm",
				"Production-ready appearance",
			},
		},
		{
			Name:        "ux",
			Weight:      15,
			Description: "User experience is intuitive and pleasant",
			Criteria: []string{
				"Clear visual hierarchy",
				"Intuitive navigation and flow",
				"Appropriate feedback for user actions",
			},
		},
		{
			Name:        "accessibility",
			Weight:      15,
			Description: "Accessible to all users",
			Criteria: []string{
				"Semantic HTML elements",
				"Proper ARIA labels where needed",
				"Keyboard navigation works",
				"Good color contrast",
			},
		},
		{
			Name:        "responsiveness",
			Weight:      15,
			Description: "Works well on different screen sizes",
			Criteria: []string{
				"Mobile layout (375px) is usable",
				"Desktop layout is optimal",
				"No horizontal scrolling on mobile",
			},
		},
		{
			Name:        "robustness",
			Weight:      5,
			Description: "Handles edge cases and errors gracefully",
			Criteria: []string{
				"No console errors",
				"Graceful error handling",
				"Stable under interaction",
			},
		},
	},
}

// Names returns the rubric's category names in declared order.
func (r Rubric) Names() []string {
	names := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		names[i] = c.Name
	}
	return names
}
