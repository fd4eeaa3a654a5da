package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/parkd/internal/pricing"
	"github.com/danmuck/parkd/internal/protocol/session"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errBadVehicle = errors.New("vehicle must be make/model/color/plate")

func newDiscoverCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Print the coordinator session address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			addr, err := opts.resolve(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), addr)
			return err
		},
	}
}

func newLotsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lots",
		Short: "List parking lots from the session snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			conn, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			return writeLots(cmd.OutOrStdout(), conn.Lots())
		},
	}
}

func writeLots(w io.Writer, snap session.LotSnapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOT\tTOTAL\tOCCUPIED\tFREE\tPRICE/H")
	for _, id := range snap.IDs() {
		lot := snap[id]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			id,
			humanize.Comma(int64(lot.TotalSpaces)),
			humanize.Comma(int64(lot.OccupiedSpaces)),
			humanize.Comma(int64(lot.Available())),
			pricing.Money(lot.PricePerHour).Grouped(),
		)
	}
	return tw.Flush()
}

func newReserveCommand(opts *globalOptions) *cobra.Command {
	var (
		lotID         uint32
		spaces        uint32
		depart        string
		acceptPartial bool
		vehicles      []string
	)
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Reserve spaces in a lot until a departure time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := session.AllocateRequest{LotID: lotID, Spaces: spaces, Departure: depart}
			for _, raw := range vehicles {
				v, err := parseVehicle(raw)
				if err != nil {
					return err
				}
				req.Vehicles = append(req.Vehicles, v)
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			conn, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			res, err := conn.Reserve(ctx, req, func(available int) bool {
				verb := "declining"
				if acceptPartial {
					verb = "accepting"
				}
				fmt.Fprintf(out, "only %d of %d spaces free, %s\n", available, spaces, verb)
				return acceptPartial
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "reserved id=%d lot=%d spaces=%d\n", res.ID, res.LotID, res.Spaces)
			return err
		},
	}
	cmd.Flags().Uint32Var(&lotID, "lot", 0, "lot id")
	cmd.Flags().Uint32Var(&spaces, "spaces", 1, "number of spaces")
	cmd.Flags().StringVar(&depart, "depart", "", "departure time HH:mm")
	cmd.Flags().BoolVar(&acceptPartial, "accept-partial", false, "accept fewer spaces when the lot cannot cover the request")
	cmd.Flags().StringArrayVar(&vehicles, "vehicle", nil, "vehicle make/model/color/plate (repeatable)")
	_ = cmd.MarkFlagRequired("lot")
	_ = cmd.MarkFlagRequired("depart")
	return cmd
}

func parseVehicle(raw string) (session.Vehicle, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 4 {
		return session.Vehicle{}, fmt.Errorf("%w: %q", errBadVehicle, raw)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return session.Vehicle{}, fmt.Errorf("%w: %q", errBadVehicle, raw)
		}
	}
	return session.Vehicle{
		Manufacturer: parts[0],
		Model:        parts[1],
		Color:        parts[2],
		Plate:        parts[3],
	}, nil
}

func parseReservationID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid reservation id %q", raw)
	}
	return id, nil
}

func newQuoteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <id>",
		Short: "Show the fee owed for a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReservationID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			conn, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			fee, err := conn.Quote(ctx, id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reservation %d owes %s\n", id, fee.Grouped())
			return err
		},
	}
}

// release quotes first so the user sees the settled amount; the release
// itself has no reply.
func newReleaseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release <id>",
		Short: "Pay for and release a reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReservationID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			conn, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			fee, err := conn.Quote(ctx, id)
			if err != nil {
				return err
			}
			if err := conn.Release(ctx, id); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "released reservation %d, paid %s\n", id, fee.Grouped())
			return err
		},
	}
}
