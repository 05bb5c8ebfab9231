package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/monitor"
	"github.com/abelbrown/vinewatch/internal/store"
)

func (c *cli) set(args []string) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	del := fs.Bool("rm", false, "Delete the key instead of setting it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case fs.NArg() == 0:
		return c.listSettings(st)
	case *del && fs.NArg() == 1:
		if err := st.Delete(fs.Arg(0)); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "deleted %s\n", fs.Arg(0))
		return nil
	case fs.NArg() == 2:
		key, value := fs.Arg(0), fs.Arg(1)
		if err := validateSetting(key, value); err != nil {
			return err
		}
		if err := st.Set(key, value); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s = %s\n", key, value)
		return nil
	default:
		return fmt.Errorf("usage: vinectl set [<key> <value>] | vinectl set -rm <key>")
	}
}

func (c *cli) listSettings(st *store.Store) error {
	all, err := st.All()
	if err != nil {
		return err
	}
	rev, err := st.Rev()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "revision %d, %d settings\n", rev, len(all))
	for _, s := range all {
		fmt.Fprintf(c.out, "  %-20s %-50s %s\n", s.Key, truncate(s.Value, 50), s.Updated.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// validateSetting rejects values the monitor could not use for the
// well-known keys. Unknown keys are accepted as is.
func validateSetting(key, value string) error {
	switch {
	case key == store.KeyHighlightPush || key == store.KeyLastChancePush:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s wants true or false", key)
		}
	case key == store.KeyCapacity:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s wants a positive integer", key)
		}
	case key == monitor.KeyView:
		if _, err := monitor.ParseView(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	case strings.HasPrefix(key, "rules."):
		if _, err := parseKind(strings.TrimPrefix(key, "rules.")); err != nil {
			return err
		}
		var rules []model.Rule
		if err := json.Unmarshal([]byte(value), &rules); err != nil {
			return fmt.Errorf("%s wants a JSON rule list: %w", key, err)
		}
	}
	return nil
}
