package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/studylog/internal/store"
)

func subjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "List subjects and their units",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			tax, err := s.Taxonomy(cmd.Context())
			if err != nil {
				return err
			}
			if len(tax.Subjects) == 0 {
				fmt.Println("No subjects yet. Use 'studylog subject add' to create one.")
				return nil
			}
			var rows [][]string
			for _, subj := range tax.Subjects {
				rows = append(rows, []string{subj.Name, strings.Join(subj.Units, ", ")})
			}
			fmt.Println(renderTable([]string{"Subject", "Units"}, rows))
			return nil
		},
	}
}

// storeCmd builds a command that runs fn against the store
func storeCmd(use, short string, nargs int, fn func(ctx context.Context, s *store.Store, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()
			return fn(cmd.Context(), s, args)
		},
	}
}

func subjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Add, rename or delete a subject",
	}

	cmd.AddCommand(storeCmd("add [name]", "Add a subject", 1,
		func(ctx context.Context, s *store.Store, args []string) error {
			return s.CreateSubject(ctx, args[0])
		}))
	cmd.AddCommand(storeCmd("rename [old] [new]", "Rename a subject and refile its questions", 2,
		func(ctx context.Context, s *store.Store, args []string) error {
			return s.RenameSubject(ctx, args[0], args[1])
		}))
	cmd.AddCommand(storeCmd("delete [name]", "Delete a subject; its questions stay in their day transcripts", 1,
		func(ctx context.Context, s *store.Store, args []string) error {
			return s.DeleteSubject(ctx, args[0])
		}))
	return cmd
}

func unitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Add, rename or delete a unit",
	}

	cmd.AddCommand(storeCmd("add [subject] [name]", "Add a unit to a subject", 2,
		func(ctx context.Context, s *store.Store, args []string) error {
			return s.CreateUnit(ctx, args[0], args[1])
		}))
	cmd.AddCommand(storeCmd("rename [subject] [old] [new]", "Rename a unit and refile its questions", 3,
		func(ctx context.Context, s *store.Store, args []string) error {
			return s.RenameUnit(ctx, args[0], args[1], args[2])
		}))
	cmd.AddCommand(storeCmd("delete [subject] [name]", "Delete a unit; its questions stay in their day transcripts", 2,
		func(ctx context.Context, s *store.Store, args []string) error {
			return s.DeleteUnit(ctx, args[0], args[1])
		}))
	return cmd
}
