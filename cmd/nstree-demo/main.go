// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/strongdm/nstree"
	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/internal/config"
)

func main() {
	scenario := flag.String("scenario", "all", "which testable-property scenario to run (e1..e6, or all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(cfg.LogLevel)

	scenarios := map[string]func(*nstree.Namespace, time.Time){
		"e1": scenarioE1,
		"e2": scenarioE2,
		"e3": scenarioE3,
		"e4": scenarioE4,
		"e5": scenarioE5,
		"e6": scenarioE6,
	}

	run := func(name string, fn func(*nstree.Namespace, time.Time)) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		ns := nstree.New(now)
		slog.Info("[nstree-demo] running scenario", "scenario", name)
		fn(ns, now)
	}

	if *scenario == "all" {
		for _, name := range []string{"e1", "e2", "e3", "e4", "e5", "e6"} {
			run(name, scenarios[name])
		}
		return
	}

	fn, ok := scenarios[*scenario]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *scenario)
		os.Exit(1)
	}
	run(*scenario, fn)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func perm(owner string) inode.Permissions {
	return inode.Permissions{Owner: owner, Group: owner, Mode: 0o755}
}

// scenarioE1 — snapshot after create, then delete: the file must
// still resolve under .snapshot after being deleted live.
func scenarioE1(ns *nstree.Namespace, now time.Time) {
	_, err := ns.Mkdirs("/a", perm("alice"), now)
	must(err)
	f, err := ns.Create("/a/f1", perm("alice"), now)
	must(err)
	f.SetBlocks([]inode.BlockID{1, 2})
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)
	_, err = ns.Delete("/a/f1", now)
	must(err)

	res, err := ns.Lookup("/a/.snapshot/s0/f1")
	must(err)
	slog.Info("[nstree-demo] e1 result", "found_in_snapshot", res.Found())
}

// scenarioE2 — snapshot then modify: the live copy changes, the
// snapshot copy retains its original attributes.
func scenarioE2(ns *nstree.Namespace, now time.Time) {
	_, err := ns.Mkdirs("/a", perm("alice"), now)
	must(err)
	_, err = ns.Create("/a/f1", perm("alice"), now)
	must(err)
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)

	later := now.Add(time.Hour)
	must(ns.SetAttrs("/a/f1", perm("bob"), later))

	res, err := ns.Lookup("/a/.snapshot/s0/f1")
	must(err)
	slog.Info("[nstree-demo] e2 result", "snapshot_owner", res.Last().Perm().Owner)
}

// scenarioE3 — rename into a snapshot: both the old and new path
// remain reachable, through a shared reference.
func scenarioE3(ns *nstree.Namespace, now time.Time) {
	_, err := ns.Mkdirs("/a", perm("alice"), now)
	must(err)
	_, err = ns.Mkdirs("/b", perm("alice"), now)
	must(err)
	_, err = ns.Create("/a/x", perm("alice"), now)
	must(err)
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)
	must(ns.Rename("/a/x", "/b/y", now.Add(time.Minute)))

	res, err := ns.Lookup("/b/y")
	must(err)
	ref := res.Last().AsReference()
	slog.Info("[nstree-demo] e3 result", "ref_count", ref.Count())
}

// scenarioE4 — deleting the covering snapshot after a rename drops the
// reference count but leaves the live destination intact.
func scenarioE4(ns *nstree.Namespace, now time.Time) {
	_, err := ns.Mkdirs("/a", perm("alice"), now)
	must(err)
	_, err = ns.Mkdirs("/b", perm("alice"), now)
	must(err)
	_, err = ns.Create("/a/x", perm("alice"), now)
	must(err)
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)
	must(ns.Rename("/a/x", "/b/y", now))
	_, err = ns.DeleteSnapshot("/a", "s0")
	must(err)

	res, err := ns.Lookup("/b/y")
	must(err)
	ref := res.Last().AsReference()
	slog.Info("[nstree-demo] e4 result", "ref_count", ref.Count())
}

// scenarioE5 — a file created between two successive snapshots and
// deleted after the later one is visible only in the later one.
func scenarioE5(ns *nstree.Namespace, now time.Time) {
	_, err := ns.Mkdirs("/a", perm("alice"), now)
	must(err)
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)
	_, err = ns.Create("/a/f1", perm("alice"), now)
	must(err)
	_, err = ns.CreateSnapshot("/a", "s1", now)
	must(err)
	_, err = ns.Delete("/a/f1", now)
	must(err)

	inS0, err := ns.Lookup("/a/.snapshot/s0/f1")
	must(err)
	inS1, err := ns.Lookup("/a/.snapshot/s1/f1")
	must(err)
	slog.Info("[nstree-demo] e5 result", "in_s0", inS0.Found(), "in_s1", inS1.Found())
}

// scenarioE6 — create and delete within the same diff must never
// surface in an earlier snapshot, but its blocks must still be
// collected once that diff is combined away.
func scenarioE6(ns *nstree.Namespace, now time.Time) {
	_, err := ns.Mkdirs("/a", perm("alice"), now)
	must(err)
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)
	_, err = ns.CreateSnapshot("/a", "s1", now)
	must(err)

	f, err := ns.Create("/a/tmp", perm("alice"), now)
	must(err)
	f.SetBlocks([]inode.BlockID{42})
	_, err = ns.Delete("/a/tmp", now)
	must(err)

	info, err := ns.DeleteSnapshot("/a", "s1")
	must(err)
	slog.Info("[nstree-demo] e6 result", "blocks_collected", info.Blocks)
}
