package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/rights"
	"github.com/roach88/cadence/internal/state"
)

// today is the payload day for action commands.
func today() string {
	return string(state.DayOf(time.Now()))
}

// runAction pushes one action through the service and renders the
// resulting snapshot. Governance refusals exit with ExitDenied and the
// machine-readable code.
func runAction(opts *RootOptions, cmd *cobra.Command, userID string, t event.Type, payload event.Payload, actor event.Actor) error {
	svc, closeFn, err := openService(opts)
	if err != nil {
		return err
	}
	defer closeFn()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	st, err := svc.ProcessAction(cmd.Context(), userID, t, payload, actor)
	if err != nil {
		var gerr *rights.GovernanceError
		if errors.As(err, &gerr) {
			if oerr := out.Denied(string(gerr.Code), gerr.Explanation()); oerr != nil {
				return oerr
			}
			return WrapExitError(ExitDenied, "action denied", err)
		}
		return WrapExitError(ExitCommandError, "process action", err)
	}

	return out.Success(st, formatState(st))
}

// formatState renders the one-screen text summary of a snapshot.
func formatState(st *state.UserState) string {
	streak := "inactive"
	if st.Streak.Active {
		streak = fmt.Sprintf("day %d", st.Streak.Count)
	}
	s := fmt.Sprintf("%s | %s | streak %s (longest %d, freezes %d) | score %d (%s) | capital %d",
		st.UserID, st.EngagementState, streak,
		st.Streak.Longest, st.Streak.FreezeTokens,
		st.Engagement.Score, st.Engagement.Tier,
		st.Social.SocialCapital,
	)
	if st.Obligation != nil {
		if st.Obligation.Action != "" {
			s += fmt.Sprintf("\n  owes: %s within %dh", st.Obligation.Action, st.Obligation.DeadlineHours)
		} else if st.Obligation.ConsistencyTarget > 0 {
			s += fmt.Sprintf("\n  owes: %d consistent days (%d done)", st.Obligation.ConsistencyTarget, st.RecoveryProgress)
		}
	}
	if st.Recovery.IsSalvageable {
		s += fmt.Sprintf("\n  salvage window: %dh remaining", st.Recovery.WindowRemainingHours)
	}
	return s
}

// NewCheckinCommand creates the checkin command.
func NewCheckinCommand(opts *RootOptions) *cobra.Command {
	var group, proof, note string

	cmd := &cobra.Command{
		Use:   "checkin <user-id>",
		Short: "Record a completed day",
		Long: `Record a completed primary action for today.

A first checkin for an unknown user opens their ledger automatically.

Example:
  cadence checkin alice
  cadence checkin alice --group crew-7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			actor := event.Actor{Type: event.ActorUser, ID: userID}
			if group != "" {
				return runAction(opts, cmd, userID, event.TypeGroupCheckIn, event.Payload{
					GroupCheckIn: &event.GroupCheckInPayload{Day: today(), GroupID: group},
				}, actor)
			}
			return runAction(opts, cmd, userID, event.TypeCheckIn, event.Payload{
				CheckIn: &event.CheckInPayload{Day: today(), ProofURL: proof, Note: note},
			}, actor)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "check in together with a group")
	cmd.Flags().StringVar(&proof, "proof", "", "proof URL (object storage, never raw bytes)")
	cmd.Flags().StringVar(&note, "note", "", "freeform note")

	return cmd
}

// NewRestCommand creates the rest command.
func NewRestCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rest <user-id>",
		Short:         "Mark today as a deliberate rest day",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypeRestDay, event.Payload{
				RestDay: &event.RestDayPayload{Day: today()},
			}, event.Actor{Type: event.ActorUser, ID: args[0]})
		},
	}
	return cmd
}

// NewLinkCommand creates the link command.
func NewLinkCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "link <user-id> <partner-id>",
		Short:         "Link two users as accountability partners",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypePartnerLinked, event.Payload{
				PartnerLinked: &event.PartnerLinkedPayload{PartnerID: args[1]},
			}, event.Actor{Type: event.ActorUser, ID: args[0]})
		},
	}
	return cmd
}

// NewSupportCommand creates the support command.
func NewSupportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "support <recipient-id> <from-id>",
		Short: "Send support to a partner",
		Long: `Send support to a partner. Recorded on the RECIPIENT's ledger;
grants a freeze token if they are currently at risk.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypeSendSupport, event.Payload{
				SendSupport: &event.SendSupportPayload{FromUserID: args[1]},
			}, event.Actor{Type: event.ActorPartner, ID: args[1]})
		},
	}
	return cmd
}

// NewWitnessCommand creates the witness command.
func NewWitnessCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "witness <user-id> <witness-id>",
		Short:         "Vouch for a user's completed day",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypeWitnessWorkout, event.Payload{
				WitnessWorkout: &event.WitnessWorkoutPayload{WitnessID: args[1], Day: today()},
			}, event.Actor{Type: event.ActorPartner, ID: args[1]})
		},
	}
	return cmd
}

// NewAppealCommand creates the appeal command.
func NewAppealCommand(opts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "appeal <user-id>",
		Short:         "Submit a formal appeal against a fracture",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypeAppealSubmitted, event.Payload{
				AppealSubmitted: &event.AppealSubmittedPayload{Day: today(), Reason: reason},
			}, event.Actor{Type: event.ActorUser, ID: args[0]})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "grounds for the appeal")
	cmd.MarkFlagRequired("reason")

	return cmd
}

// NewPardonCommand creates the pardon command.
func NewPardonCommand(opts *RootOptions) *cobra.Command {
	var restore int
	var by string

	cmd := &cobra.Command{
		Use:           "pardon <user-id>",
		Short:         "Grant a pardon restoring a fractured streak",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypePardonGranted, event.Payload{
				PardonGranted: &event.PardonGrantedPayload{RestoredCount: restore, GrantedBy: by},
			}, event.Actor{Type: event.ActorSystem, ID: by})
		},
	}

	cmd.Flags().IntVar(&restore, "restore", 0, "streak count to restore")
	cmd.Flags().StringVar(&by, "by", "", "granting authority")
	cmd.MarkFlagRequired("restore")
	cmd.MarkFlagRequired("by")

	return cmd
}

// NewResurrectCommand creates the resurrect command.
func NewResurrectCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resurrect <user-id>",
		Short:         "Return a dormant user to onboarding",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, cmd, args[0], event.TypeResurrection, event.Payload{
				Resurrection: &event.ResurrectionPayload{Day: today()},
			}, event.Actor{Type: event.ActorUser, ID: args[0]})
		},
	}
	return cmd
}
