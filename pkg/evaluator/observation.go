package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"loopctl/pkg/logger"
	"loopctl/pkg/mcpclient"
)

// ConsoleMessage is one entry from the browser's console log.
type ConsoleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Snapshot is the subset of the page's DOM snapshot the evaluator cares
// about: enough to describe what's on the page without shipping the whole
// accessibility tree into the prompt.
type Snapshot struct {
	Title   string   `json:"title"`
	Buttons []string `json:"buttons"`
}

// Observation is everything collected about one page load: screenshots at
// two viewports, a DOM snapshot, console output, and which scripted
// interactions succeeded or failed.
type Observation struct {
	DesktopScreenshot    string
	MobileScreenshot     string
	ConsoleMessages      []ConsoleMessage
	ConsoleErrors        []ConsoleMessage
	Snapshot             *Snapshot
	InteractionsPerformed []string
	InteractionResults   map[string]bool
}

// interactionCase is one generic selector the collector probes for and, if
// present, exercises — these are deliberately broad so they apply to any
// generated page rather than one task's specific markup.
type interactionCase struct {
	name     string
	selector string
	kind     string // "click" or "fill"
}

var interactionCases = []interactionCase{
	{"button_first", "button:first-of-type", "click"},
	{"button_second", "button:nth-of-type(2)", "click"},
	{"button_primary", `button[class*="primary"], button[class*="btn"]`, "click"},
	{"link_first", "a:first-of-type", "click"},
	{"input_first", "input:first-of-type", "fill"},
}

// CollectObservations drives the browser through navigate → screenshot →
// snapshot → scripted interactions → mobile viewport → console dump, logging
// and continuing past individual tool failures so one broken probe doesn't
// abort the whole evaluation.
func CollectObservations(ctx context.Context, client *mcpclient.Client, url, screenshotsDir string, log logger.Logger) Observation {
	obs := Observation{InteractionResults: make(map[string]bool)}

	log.Infof("evaluator: navigating to %s", url)
	if err := client.Navigate(ctx, url); err != nil {
		log.Errorf("evaluator: navigation failed: %v", err)
		obs.InteractionResults["navigate"] = false
		return obs
	}
	obs.InteractionsPerformed = append(obs.InteractionsPerformed, "navigate")
	obs.InteractionResults["navigate"] = true

	_, _ = client.WaitFor(ctx, "networkidle", 1000)

	desktopPath := filepath.Join(screenshotsDir, "desktop.png")
	if _, err := client.Screenshot(ctx, desktopPath, true); err != nil {
		log.Errorf("evaluator: desktop screenshot failed: %v", err)
	} else {
		obs.DesktopScreenshot = desktopPath
		obs.InteractionsPerformed = append(obs.InteractionsPerformed, "screenshot_desktop")
	}

	if raw, err := client.Snapshot(ctx); err != nil {
		log.Errorf("evaluator: snapshot failed: %v", err)
	} else if snap, ok := parseSnapshot(raw); ok {
		obs.Snapshot = &snap
		obs.InteractionsPerformed = append(obs.InteractionsPerformed, "snapshot")
	}

	testInteractions(ctx, client, &obs, log)

	log.Infof("evaluator: testing mobile responsiveness (375px)")
	if _, err := client.Evaluate(ctx, "window.resizeTo(375, 667)"); err != nil {
		log.Errorf("evaluator: mobile resize failed: %v", err)
	} else {
		_, _ = client.WaitFor(ctx, "timeout", 500)
		mobilePath := filepath.Join(screenshotsDir, "mobile.png")
		if _, err := client.Screenshot(ctx, mobilePath, true); err != nil {
			log.Errorf("evaluator: mobile screenshot failed: %v", err)
		} else {
			obs.MobileScreenshot = mobilePath
			obs.InteractionsPerformed = append(obs.InteractionsPerformed, "screenshot_mobile")
		}
	}

	if raw, err := client.ConsoleMessages(ctx); err != nil {
		log.Errorf("evaluator: console log collection failed: %v", err)
	} else if msgs, ok := parseConsoleMessages(raw); ok {
		obs.ConsoleMessages = msgs
		for _, m := range msgs {
			if m.Type == "error" {
				obs.ConsoleErrors = append(obs.ConsoleErrors, m)
			}
		}
		obs.InteractionsPerformed = append(obs.InteractionsPerformed, "console_logs")
	}

	log.Infof("evaluator: collected %d interactions, %d console errors",
		len(obs.InteractionsPerformed), len(obs.ConsoleErrors))
	return obs
}

func testInteractions(ctx context.Context, client *mcpclient.Client, obs *Observation, log logger.Logger) {
	for _, tc := range interactionCases {
		exists, err := elementExists(ctx, client, tc.selector)
		if err != nil {
			log.Infof("evaluator: probing %s failed: %v", tc.name, err)
			obs.InteractionResults[tc.name] = false
			continue
		}
		if !exists {
			obs.InteractionResults[tc.name] = false
			continue
		}

		switch tc.kind {
		case "click":
			if _, err := client.Click(ctx, tc.selector); err != nil {
				obs.InteractionResults["click_"+tc.name] = false
				continue
			}
			_, _ = client.WaitFor(ctx, "timeout", 500)
			obs.InteractionsPerformed = append(obs.InteractionsPerformed, "click_"+tc.name)
			obs.InteractionResults["click_"+tc.name] = true
		case "fill":
			if _, err := client.Type(ctx, tc.selector, "test input"); err != nil {
				obs.InteractionResults["fill_"+tc.name] = false
				continue
			}
			obs.InteractionsPerformed = append(obs.InteractionsPerformed, "fill_"+tc.name)
			obs.InteractionResults["fill_"+tc.name] = true
		}
	}
}

func elementExists(ctx context.Context, client *mcpclient.Client, selector string) (bool, error) {
	raw, err := client.Evaluate(ctx, fmt.Sprintf("!!document.querySelector(%q)", selector))
	if err != nil {
		return false, err
	}
	var result struct {
		Result bool `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, nil
	}
	return result.Result, nil
}

func parseSnapshot(raw json.RawMessage) (Snapshot, bool) {
	var s Snapshot
	if json.Unmarshal(raw, &s) != nil {
		return Snapshot{}, false
	}
	return s, true
}

func parseConsoleMessages(raw json.RawMessage) ([]ConsoleMessage, bool) {
	var msgs []ConsoleMessage
	if json.Unmarshal(raw, &msgs) != nil {
		return nil, false
	}
	return msgs, true
}
