package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/abelbrown/vinewatch/internal/model"
)

func (c *cli) rules(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vinectl rules list|add|rm [flags]")
	}
	switch args[0] {
	case "list", "ls":
		return c.rulesList(args[1:])
	case "add":
		return c.rulesAdd(args[1:])
	case "rm", "remove":
		return c.rulesRemove(args[1:])
	default:
		return fmt.Errorf("unknown rules command %q", args[0])
	}
}

func (c *cli) rulesList(args []string) error {
	fs := flag.NewFlagSet("rules list", flag.ContinueOnError)
	kind := fs.String("kind", "", "Only this kind: hide, highlight, blur")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kinds := model.RuleKinds
	if *kind != "" {
		k, err := parseKind(*kind)
		if err != nil {
			return err
		}
		kinds = []model.RuleKind{k}
	}

	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	for _, k := range kinds {
		rules, err := st.Rules(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s (%d)\n", k, len(rules))
		for i, r := range rules {
			fmt.Fprintf(c.out, "  %2d. %s\n", i+1, formatRule(r))
		}
	}
	return nil
}

func (c *cli) rulesAdd(args []string) error {
	fs := flag.NewFlagSet("rules add", flag.ContinueOnError)
	kind := fs.String("kind", "", "Rule kind: hide, highlight, blur (required)")
	contains := fs.String("contains", "", "Keyword or regular expression to match (required)")
	without := fs.String("without", "", "Exclusion keyword")
	etvMin := fs.String("etv-min", "", "Lower ETV bound")
	etvMax := fs.String("etv-max", "", "Upper ETV bound")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, err := parseKind(*kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*contains) == "" {
		return errors.New("-contains is required")
	}
	rule := model.Rule{Contains: *contains, Without: *without}
	if rule.ETVMin, err = parseBound(*etvMin); err != nil {
		return err
	}
	if rule.ETVMax, err = parseBound(*etvMax); err != nil {
		return err
	}

	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rules, err := st.Rules(k)
	if err != nil {
		return err
	}
	rules = append(rules, rule)
	if err := st.SetRules(k, rules); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added %s rule %d: %s\n", k, len(rules), formatRule(rule))
	return nil
}

func (c *cli) rulesRemove(args []string) error {
	fs := flag.NewFlagSet("rules rm", flag.ContinueOnError)
	kind := fs.String("kind", "", "Rule kind: hide, highlight, blur (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := parseKind(*kind)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vinectl rules rm -kind <kind> <number>")
	}
	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("rule number: %w", err)
	}

	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rules, err := st.Rules(k)
	if err != nil {
		return err
	}
	if n < 1 || n > len(rules) {
		return fmt.Errorf("no %s rule %d (have %d)", k, n, len(rules))
	}
	removed := rules[n-1]
	rules = append(rules[:n-1], rules[n:]...)
	if err := st.SetRules(k, rules); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %s rule %d: %s\n", k, n, formatRule(removed))
	return nil
}

func parseKind(s string) (model.RuleKind, error) {
	for _, k := range model.RuleKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown rule kind %q (want hide, highlight or blur)", s)
}

func parseBound(s string) (model.Bound, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Bound{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Bound{}, fmt.Errorf("invalid etv bound %q", s)
	}
	return model.BoundOf(v), nil
}

func formatRule(r model.Rule) string {
	out := fmt.Sprintf("%q", truncate(r.Contains, 60))
	if r.Without != "" {
		out += fmt.Sprintf(" without %q", r.Without)
	}
	if r.HasETV() {
		lo, hi := r.ETVMin.String(), r.ETVMax.String()
		if lo == "" {
			lo = "*"
		}
		if hi == "" {
			hi = "*"
		}
		out += fmt.Sprintf(" etv %s..%s", lo, hi)
	}
	return out
}
