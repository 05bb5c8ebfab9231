package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abelbrown/vinewatch/internal/model"
	"github.com/abelbrown/vinewatch/internal/store"
	"github.com/abelbrown/vinewatch/internal/tabs"
)

func (c *cli) stats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	since := fs.Duration("since", 24*time.Hour, "Journal window to summarize")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rev, err := st.Rev()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Session:               %s\n", c.cfg.Session)
	fmt.Fprintf(c.out, "Settings revision:     %d\n", rev)
	fmt.Fprintf(c.out, "Feed capacity:         %d\n", st.Int(store.KeyCapacity, c.cfg.Feed.Capacity))
	fmt.Fprintf(c.out, "Highlight push:        %v\n", st.Bool(store.KeyHighlightPush, true))
	fmt.Fprintf(c.out, "Last chance push:      %v\n", st.Bool(store.KeyLastChancePush, false))
	for _, k := range model.RuleKinds {
		rules, err := st.Rules(k)
		if err != nil {
			fmt.Fprintf(c.out, "Rules %-16s unreadable: %v\n", k+":", err)
			continue
		}
		fmt.Fprintf(c.out, "Rules %-16s %d\n", k+":", len(rules))
	}

	if c.cfg.Redis.Addr != "" {
		fmt.Fprintln(c.out)
		c.printMaster()
	}

	fmt.Fprintln(c.out)
	counts, err := journalCounts(c.cfg.JournalPath(), time.Now().Add(-*since))
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(c.out, "No event journal yet.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Events in last %s (%d kinds):\n", *since, len(counts))
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(c.out, "  %-28s %d\n", k, counts[k])
	}
	return nil
}

// printMaster reports which tab holds the session lease.
func (c *cli) printMaster() {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := tabs.LeaseKey(c.cfg.Session)
	holder, err := rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		fmt.Fprintln(c.out, "Master tab:            none")
	case err != nil:
		fmt.Fprintf(c.out, "Master tab:            unknown (%v)\n", err)
	default:
		ttl, _ := rdb.PTTL(ctx, key).Result()
		fmt.Fprintf(c.out, "Master tab:            %s (lease %s)\n", holder, ttl.Round(time.Millisecond))
	}
}

func journalCounts(path string, since time.Time) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	counts := map[string]int{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		var ev eventRecord
		if json.Unmarshal(scanner.Bytes(), &ev) != nil || ev.Time.Before(since) {
			continue
		}
		counts[ev.Kind]++
	}
	return counts, scanner.Err()
}
