package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaille/studylog/internal/browse"
	"github.com/pbaille/studylog/internal/domain"
	"github.com/pbaille/studylog/internal/store"
)

// locationFlags selects a day or a unit transcript
type locationFlags struct {
	day     string
	subject string
	unit    string
}

func (f *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.day, "date", "", "day transcript (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject of a unit transcript")
	cmd.Flags().StringVar(&f.unit, "unit", "", "unit of a unit transcript")
}

func (f *locationFlags) location() (domain.Location, error) {
	switch {
	case f.day != "" && (f.subject != "" || f.unit != ""):
		return domain.Location{}, fmt.Errorf("use either --date or --subject/--unit")
	case f.day != "":
		return domain.DayLocation(f.day), nil
	case f.subject != "" && f.unit != "":
		return domain.UnitLocation(f.subject, f.unit), nil
	default:
		return domain.Location{}, fmt.Errorf("--date or both --subject and --unit are required")
	}
}

func parseIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("index must be an integer: %q", arg)
	}
	return i, nil
}

func daysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "days",
		Short: "List days that have a transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			days, err := s.Days(cmd.Context())
			if err != nil {
				return err
			}
			if len(days) == 0 {
				fmt.Println("No transcripts yet. Use 'studylog ask' to start one.")
				return nil
			}
			for _, d := range days {
				fmt.Println(d)
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var loc locationFlags
	var full bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a day or unit transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loc.location()
			if err != nil {
				return err
			}

			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			pairs, err := s.Pairs(cmd.Context(), l)
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				fmt.Printf("%s is empty.\n", l)
				return nil
			}

			var rows [][]string
			for i, p := range pairs {
				for side, e := range p.Entries() {
					text := e.Display()
					if e.Collapsed && !full {
						text = "(collapsed)"
					} else if !full {
						text = truncate(text, 70)
					}
					filed := ""
					if side == 0 && p.Filed() {
						filed = p.Subject + " > " + p.Unit
					}
					rows = append(rows, []string{strconv.Itoa(2*i + side), string(e.Sender), text, filed, e.Memo})
				}
			}
			fmt.Println(renderTable([]string{"#", "From", "Text", "Unit", "Memo"}, rows, 0))
			return nil
		},
	}

	loc.register(cmd)
	cmd.Flags().BoolVar(&full, "full", false, "show full text, including collapsed entries")
	return cmd
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search questions across all units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			groups, err := browse.New(s).Questions(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var rows [][]string
			for _, g := range groups {
				for _, q := range g.Questions {
					rows = append(rows, []string{g.Subject, g.Unit, strconv.Itoa(q.Index), truncate(q.Entry.Text, 60)})
				}
			}
			if len(rows) == 0 {
				fmt.Println("No matching questions found.")
				return nil
			}
			fmt.Println(renderTable([]string{"Subject", "Unit", "#", "Question"}, rows, 2))
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	var loc locationFlags

	cmd := &cobra.Command{
		Use:   "delete [index]",
		Short: "Delete the question/answer pair starting at index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loc.location()
			if err != nil {
				return err
			}
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}

			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeletePair(cmd.Context(), l, index); err != nil {
				return err
			}
			fmt.Printf("Deleted pair %d from %s\n", index, l)
			return nil
		},
	}

	loc.register(cmd)
	return cmd
}

func moveCmd() *cobra.Command {
	var (
		loc               locationFlags
		toSubject, toUnit string
	)

	cmd := &cobra.Command{
		Use:   "move [index]",
		Short: "Move the pair at index to another unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := loc.location()
			if err != nil {
				return err
			}
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}

			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			pair, err := s.MovePair(cmd.Context(), from, domain.UnitLocation(toSubject, toUnit), index)
			if err != nil {
				return err
			}
			fmt.Printf("Moved %q to %s > %s\n", truncate(pair.Question.Text, 40), pair.Subject, pair.Unit)
			return nil
		},
	}

	loc.register(cmd)
	cmd.Flags().StringVar(&toSubject, "to-subject", "", "destination subject")
	cmd.Flags().StringVar(&toUnit, "to-unit", "", "destination unit")
	_ = cmd.MarkFlagRequired("to-subject")
	_ = cmd.MarkFlagRequired("to-unit")
	return cmd
}

func collapseCmd() *cobra.Command {
	var (
		loc    locationFlags
		expand bool
	)

	cmd := &cobra.Command{
		Use:   "collapse [index]",
		Short: "Collapse or expand one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loc.location()
			if err != nil {
				return err
			}
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}

			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			return s.SetCollapsed(cmd.Context(), l, index, !expand)
		},
	}

	loc.register(cmd)
	cmd.Flags().BoolVar(&expand, "expand", false, "expand instead of collapse")
	return cmd
}

func memoCmd() *cobra.Command {
	var loc locationFlags

	cmd := &cobra.Command{
		Use:   "memo [index] [text]",
		Short: "Set the memo of one entry; empty text clears it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := loc.location()
			if err != nil {
				return err
			}
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}

			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			return s.SetMemo(cmd.Context(), l, index, strings.Join(args[1:], " "))
		},
	}

	loc.register(cmd)
	return cmd
}

func statsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Questions per day and subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := browse.New(s).WeeklyCounts(cmd.Context(), time.Now(), days)
			if err != nil {
				return err
			}

			seen := map[string]bool{}
			var subjects []string
			for _, d := range stats {
				for subj := range d.Subjects {
					if !seen[subj] {
						seen[subj] = true
						subjects = append(subjects, subj)
					}
				}
			}
			sort.Strings(subjects)

			headers := append([]string{"Day"}, subjects...)
			headers = append(headers, "Total")
			right := make([]int, 0, len(headers)-1)
			for i := 1; i < len(headers); i++ {
				right = append(right, i)
			}

			rows := make([][]string, 0, len(stats))
			for _, d := range stats {
				row := []string{d.Day}
				for _, subj := range subjects {
					row = append(row, strconv.Itoa(d.Subjects[subj]))
				}
				rows = append(rows, append(row, strconv.Itoa(d.Total)))
			}
			fmt.Println(renderTable(headers, rows, right...))
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "n", 7, "number of days to show")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file.json]",
		Short: "Import a browser local-storage export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export: %w", err)
			}
			var snap store.LegacySnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("parse export: %w", err)
			}

			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.ImportLegacy(cmd.Context(), snap)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d subjects, %d units, %d pairs (%d not filed under a unit)\n",
				report.Subjects, report.Units, report.Pairs, report.Detached)
			return nil
		},
	}
}
