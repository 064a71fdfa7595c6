package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-menu-tracker/internal/services"
)

func newMergeCmd() *cobra.Command {
	var restaurantID string
	cmd := &cobra.Command{
		Use:   "merge-duplicates",
		Short: "Merge same-name products of a restaurant into the oldest one",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if strings.TrimSpace(restaurantID) == "" {
				return withCode(exitUsage, errors.New("--restaurant is required"))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), "maintenance")
			if err != nil {
				return err
			}
			defer a.close()

			rep, err := a.maint.MergeDuplicateProducts(cmd.Context(), restaurantID)
			if errors.Is(err, services.ErrRestaurantNotFound) {
				return withCode(exitUsage, err)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "groups=%d removed=%d prices_moved=%d prices_dropped=%d\n",
				rep.Groups, rep.Removed, rep.PricesMoved, rep.PricesDropped)
			return err
		},
	}
	cmd.Flags().StringVarP(&restaurantID, "restaurant", "r", "", "restaurant id")
	return cmd
}
