package main

import (
	"context"
	"fmt"
	"time"

	"debtflow/internal/wizard"

	"github.com/spf13/cobra"
)

var gatewayWait time.Duration

// gatewayCmd manages the payment gateway connection outside the wizard.
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Payment gateway connection",
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the gateway account is connected",
	RunE:  runGatewayStatus,
}

var gatewayConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authorize the gateway account in the browser",
	Long: `Prints the authorization address and waits for the gateway to redirect
back to the local callback server. The stored draft, if any, is what the
wizard returns to on its next open.`,
	RunE: runGatewayConnect,
}

func init() {
	gatewayConnectCmd.Flags().DurationVar(&gatewayWait, "wait", 5*time.Minute, "How long to wait for the return trip")
	gatewayCmd.AddCommand(gatewayStatusCmd)
	gatewayCmd.AddCommand(gatewayConnectCmd)
}

func runGatewayStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.reconciler.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Gateway: %s\n", status)
	return nil
}

func runGatewayConnect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(gatewayWait)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.listen(); err != nil {
		return err
	}

	st := wizard.NewState()
	if restored := a.persist.Restore(ctx); restored.OK {
		st = restored.State
	}
	if st.Selections.MethodKind() != wizard.MethodGateway {
		// A bare connect returns to the payment method step on the gateway branch.
		st.Selections.Method = wizard.GatewayMethod{}
		st.Step = wizard.IndexOf(wizard.StepPaymentMethod)
	}

	auth, err := a.reconciler.BeginAuthorization(ctx, st, a.callback.URL())
	if err != nil {
		return err
	}
	a.callback.Expect(auth.Record.StateToken)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Open this address to authorize the gateway:\n\n  %s\n\nWaiting for the return trip...\n", auth.URL)

	params, err := a.inbox.Wait(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			fmt.Fprintln(w, "Timed out. The authorization is picked up the next time the wizard opens.")
			return nil
		}
		return err
	}

	rec := a.reconciler.Reconcile(ctx, params)
	switch {
	case rec.GatewayError != "":
		fmt.Fprintf(w, "The gateway reported an error: %s\n", rec.GatewayError)
	case rec.Err != nil:
		fmt.Fprintf(w, "Could not confirm the connection: %v\n", rec.Err)
	case rec.Connected():
		fmt.Fprintln(w, "Gateway connected.")
	default:
		fmt.Fprintln(w, "The gateway account is still not connected.")
	}
	return nil
}
