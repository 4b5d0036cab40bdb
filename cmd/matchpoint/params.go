package main

import (
	"github.com/spf13/cobra"

	"github.com/matchpoint-io/matchpoint/internal/elo"
)

func newParamsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Manage Elo parameter sets",
	}

	cmd.AddCommand(
		newParamsLoadCommand(a),
		newParamsShowCommand(a),
		newParamsActivateCommand(a),
	)

	return cmd
}

func newParamsLoadCommand(a *app) *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Load a parameter set from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := elo.LoadParamsFile(args[0])
			if err != nil {
				return err
			}

			store, err := a.eloStore()
			if err != nil {
				return err
			}

			id, err := store.SaveParams(cmd.Context(), params)
			if err != nil {
				return err
			}

			if activate {
				if err := store.ActivateParams(cmd.Context(), params.Name); err != nil {
					return err
				}
			}

			return printJSON(map[string]any{
				"id":     id,
				"name":   params.Name,
				"active": activate,
			})
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "activate the set after loading")

	return cmd
}

func newParamsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active parameter set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.eloStore()
			if err != nil {
				return err
			}

			params, err := store.ActiveParams(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(params)
		},
	}
}

func newParamsActivateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate NAME",
		Short: "Make the named parameter set the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.eloStore()
			if err != nil {
				return err
			}

			if err := store.ActivateParams(cmd.Context(), args[0]); err != nil {
				return err
			}

			return printJSON(map[string]any{"name": args[0], "active": true})
		},
	}
}
