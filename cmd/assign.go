package main

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/internal/store"
)

var assignCollectorID int64

var assignCmd = &cobra.Command{
	Use:   "assign <pickup-id>",
	Short: "Assign a pickup to the nearest available collector, or to --collector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pickupID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || pickupID <= 0 {
			return eris.Errorf("invalid pickup id %q", args[0])
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return assignPickup(cmd.Context(), cmd.OutOrStdout(), st, newMatcher(st), pickupID, assignCollectorID)
	},
}

type assignOutput struct {
	Pickup     *model.PickupRequest `json:"pickup"`
	Assigned   bool                 `json:"assigned"`
	Assignment *model.Assignment    `json:"assignment,omitempty"`
}

// assignPickup auto-assigns the pickup, or claims it for collectorID when
// one is given.
func assignPickup(ctx context.Context, w io.Writer, st store.Store, m *matching.Matcher, pickupID, collectorID int64) error {
	p, err := st.GetPickup(ctx, pickupID)
	if err != nil {
		return err
	}
	if p.Assigned() {
		return eris.Wrapf(store.ErrPickupAssigned, "pickup %d", pickupID)
	}

	if collectorID != 0 {
		c, err := st.GetCollector(ctx, collectorID)
		if err != nil {
			return err
		}
		a, err := m.AssignCollector(ctx, p, *c)
		if err != nil {
			return err
		}
		return printJSON(w, assignOutput{Pickup: p, Assigned: true, Assignment: a})
	}

	assigned, err := m.AutoAssignCollector(ctx, p)
	if err != nil {
		return err
	}
	return printJSON(w, assignOutput{Pickup: p, Assigned: assigned})
}

func init() {
	assignCmd.Flags().Int64Var(&assignCollectorID, "collector", 0, "collector to assign instead of the nearest")
	rootCmd.AddCommand(assignCmd)
}
