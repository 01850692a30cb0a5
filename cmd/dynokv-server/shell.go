/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/engine"
	"github.com/launix-de/dynokv/internal/exprparse"
)

const shellPrompt = "\033[32mdynokv>\033[0m "

// shellCmd is an interactive REPL over an Engine opened against the same
// data directory a "serve" process uses, in the spirit of the teacher's
// scm.Repl (scm/prompt.go): a line-oriented loop with history and
// Ctrl-C/EOF handling, generalized here from a Scheme reader to a handful
// of item commands (put/get/update/delete/tables/describe).
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "open an interactive shell against the local data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		eng, err := engine.Open(cfg)
		if err != nil {
			return fmt.Errorf("opening engine: %w", err)
		}
		defer eng.Close()

		l, err := readline.NewEx(&readline.Config{
			Prompt:            shellPrompt,
			HistoryFile:       ".dynokv-history.tmp",
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
		})
		if err != nil {
			return err
		}
		defer l.Close()
		l.CaptureExitSignal()

		fmt.Println("dynokv shell. Commands: tables, describe, put, get, update, delete, exit")
		for {
			line, err := l.Readline()
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}
			runShellCommand(eng, line)
		}
	},
}

func runShellCommand(eng *engine.Engine, line string) {
	fields := strings.SplitN(line, " ", 2)
	cmdName := fields[0]
	rest := ""
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Println("error:", r)
		}
	}()

	switch cmdName {
	case "tables":
		for _, name := range eng.ListTables() {
			fmt.Println(name)
		}
	case "describe":
		t, err := eng.DescribeTable(rest)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("%s: partition key %s (%s)", t.Name, t.PartitionKey.Name, t.PartitionKey.Type)
		if t.HasSortKey() {
			fmt.Printf(", sort key %s (%s)", t.SortKey.Name, t.SortKey.Type)
		}
		fmt.Println()
	case "put":
		args := strings.SplitN(rest, " ", 2)
		if len(args) != 2 {
			fmt.Println("usage: put <table> <item-json>")
			return
		}
		item, err := parseItemJSON(args[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		token := uuid.NewString()
		if err := eng.PutItem(context.Background(), args[0], item, nil, false, token); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")
	case "get":
		args := strings.SplitN(rest, " ", 2)
		if len(args) != 2 {
			fmt.Println("usage: get <table> <key-json>")
			return
		}
		key, err := parseItemJSON(args[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		item, ok, err := eng.GetItem(args[0], key)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if !ok {
			fmt.Println("(not found)")
			return
		}
		printItem(item)
	case "delete":
		args := strings.SplitN(rest, " ", 2)
		if len(args) != 2 {
			fmt.Println("usage: delete <table> <key-json>")
			return
		}
		key, err := parseItemJSON(args[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		token := uuid.NewString()
		if err := eng.DeleteItem(context.Background(), args[0], key, nil, false, token); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")
	case "update":
		args := strings.SplitN(rest, " ", 3)
		if len(args) != 3 {
			fmt.Println("usage: update <table> <key-json> <update-expression>")
			return
		}
		key, err := parseItemJSON(args[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		update, err := exprparse.ParseUpdate(args[2], exprparse.Params{})
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		token := uuid.NewString()
		if err := eng.UpdateItem(context.Background(), args[0], key, update, nil, false, token); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")
	default:
		fmt.Printf("unknown command %q\n", cmdName)
	}
}

func parseItemJSON(s string) (map[string]attrval.Value, error) {
	var item map[string]attrval.Value
	if err := json.Unmarshal([]byte(s), &item); err != nil {
		return nil, fmt.Errorf("parsing item JSON: %w", err)
	}
	return item, nil
}

func printItem(item map[string]attrval.Value) {
	data, err := json.Marshal(item)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(string(data))
}
