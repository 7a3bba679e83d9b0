// Command wsts-blueprint is a local demonstration/operator CLI for the WSTS
// keygen/signing core: it simulates a cohort of parties in a single process
// over an in-memory gossip network, so the protocol can be exercised without
// a live Tangle job-dispatch deployment.
//
// Grounded on the teacher's cmd/threshold-cli/main.go (root command, global
// persistent flags, one subcommand per operation, config directory
// convention) narrowed to this service's two entry points plus a combined
// "simulate" path.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/blueprint"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/frost"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/transport"
)

var (
	keystoreDir string
	blueprintID uint64
	logLevel    string

	parties   int
	threshold int
	callID    uint64

	keygenCallID uint64
	message      string
	messageFile  string

	logger *zap.SugaredLogger

	rootCmd = &cobra.Command{
		Use:   "wsts-blueprint",
		Short: "Operate and demonstrate the WSTS/FROST threshold-signing service",
		Long: `A CLI for driving the WSTS keygen/signing core: keygen generates a
threshold group key across a simulated cohort, sign produces a FROST-TR
signature against a previously generated key, and simulate runs both in
one shot.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger()
		},
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Run distributed key generation across a simulated cohort",
		RunE:  runKeygenCmd,
	}

	signCmd = &cobra.Command{
		Use:   "sign",
		Short: "Sign a message against a previously generated key",
		RunE:  runSignCmd,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run keygen followed by signing in one process",
		RunE:  runSimulateCmd,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&keystoreDir, "keystore-dir", "./wsts-data", "Keystore root directory (one subdirectory per simulated party)")
	rootCmd.PersistentFlags().Uint64Var(&blueprintID, "blueprint-id", 1, "Blueprint id domain-separating this cohort's sessions")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	_ = viper.BindPFlag("keystore-dir", rootCmd.PersistentFlags().Lookup("keystore-dir"))
	_ = viper.BindPFlag("blueprint-id", rootCmd.PersistentFlags().Lookup("blueprint-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("WSTS")
	viper.AutomaticEnv()

	keygenCmd.Flags().IntVarP(&parties, "parties", "n", 3, "Total number of parties (n)")
	// The original default, t = n-1, is used here when --threshold is
	// omitted, matching the upstream demo path's convention.
	keygenCmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Signing threshold (default n-1)")
	keygenCmd.Flags().Uint64Var(&callID, "call-id", 1, "Call id identifying this keygen job")

	signCmd.Flags().IntVarP(&parties, "parties", "n", 3, "Total number of parties (n), must match the keygen run")
	signCmd.Flags().Uint64Var(&keygenCallID, "keygen-call-id", 1, "Call id of the keygen run to sign against")
	signCmd.Flags().Uint64Var(&callID, "call-id", 2, "Call id identifying this sign job")
	signCmd.Flags().StringVarP(&message, "message", "m", "", "Message to sign (raw string, mutually exclusive with --message-file)")
	signCmd.Flags().StringVar(&messageFile, "message-file", "", "File containing the message to sign")

	simulateCmd.Flags().IntVarP(&parties, "parties", "n", 3, "Total number of parties (n)")
	simulateCmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Signing threshold (default n-1)")
	simulateCmd.Flags().Uint64Var(&callID, "call-id", 1, "Call id identifying the simulated keygen job")
	simulateCmd.Flags().StringVarP(&message, "message", "m", "demo message", "Message to sign after keygen")

	rootCmd.AddCommand(keygenCmd, signCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogger() error {
	level := viper.GetString("log-level")
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing --log-level %q: %w", level, err)
	}
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	base, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = base.Sugar()
	return nil
}

// cohort builds n in-memory StaticContexts sharing net, one fresh ephemeral
// transport identity keypair per party (these keys authenticate transport
// frames only; they are never persisted and need not match across separate
// keygen/sign invocations run from distinct process instances — every
// frame a party sends is signed with its own private half, and every other
// party verifies it against the matching Operator.VerifyKey).
func cohort(n int, net transport.Gossip, bpID, cID uint64, perPartyKeystore func(i int) string) ([]*blueprint.StaticContext, error) {
	ops := make([]blueprint.Operator, n)
	signers := make([]*secp256k1.PrivateKey, n)
	for i := 0; i < n; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, fmt.Errorf("generating operator %d transport identity: %w", i, err)
		}
		var vk [33]byte
		copy(vk[:], priv.PubKey().SerializeCompressed())
		ops[i] = blueprint.Operator{Index: uint16(i), VerifyKey: vk}
		signers[i] = priv
	}
	ctxs := make([]*blueprint.StaticContext, n)
	for i := 0; i < n; i++ {
		dir := perPartyKeystore(i)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating keystore dir %s: %w", dir, err)
		}
		ctxs[i] = &blueprint.StaticContext{
			PartyIdx:      uint16(i),
			Operators:     ops,
			Blueprint:     bpID,
			CallID:        cID,
			KeystoreDir:   dir,
			GossipNetwork: net,
			Signer:        signers[i],
		}
	}
	return ctxs, nil
}

func partyKeystoreDir(root string, i int) string {
	return filepath.Join(root, fmt.Sprintf("party-%d", i))
}

func runKeygenAll(ctx context.Context, ctxs []*blueprint.StaticContext, t uint32) ([][33]byte, error) {
	n := len(ctxs)
	var wg sync.WaitGroup
	keys := make([][33]byte, n)
	errs := make([]error, n)
	wg.Add(n)
	for i, c := range ctxs {
		go func(idx int, c *blueprint.StaticContext) {
			defer wg.Done()
			logger.Infow("starting keygen", "party_id", idx, "n", n, "threshold", t)
			k, err := blueprint.Keygen(ctx, c, t)
			keys[idx] = k
			errs[idx] = err
			if err != nil {
				logger.Errorw("keygen failed", "party_id", idx, "error", err)
			} else {
				logger.Infow("keygen complete", "party_id", idx, "group_key", hex.EncodeToString(k[:]))
			}
		}(i, c)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func runSignAll(ctx context.Context, ctxs []*blueprint.StaticContext, keygenCallID uint64, msg []byte) ([][65]byte, error) {
	n := len(ctxs)
	var wg sync.WaitGroup
	sigs := make([][65]byte, n)
	errs := make([]error, n)
	wg.Add(n)
	for i, c := range ctxs {
		go func(idx int, c *blueprint.StaticContext) {
			defer wg.Done()
			logger.Infow("starting signing", "party_id", idx, "n", n)
			s, err := blueprint.Sign(ctx, c, keygenCallID, msg)
			sigs[idx] = s
			errs[idx] = err
			if err != nil {
				logger.Errorw("signing failed", "party_id", idx, "error", err)
			} else {
				logger.Infow("signing complete", "party_id", idx, "signature", hex.EncodeToString(s[:]))
			}
		}(i, c)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return sigs, nil
}

func resolveThreshold(n, t int) uint32 {
	if t > 0 {
		return uint32(t)
	}
	return uint32(n - 1)
}

func readMessage() ([]byte, error) {
	if messageFile != "" && message != "" {
		return nil, fmt.Errorf("--message and --message-file are mutually exclusive")
	}
	if messageFile != "" {
		return os.ReadFile(messageFile)
	}
	if message == "" {
		return nil, fmt.Errorf("either --message or --message-file must be specified")
	}
	return []byte(message), nil
}

func runKeygenCmd(cmd *cobra.Command, args []string) error {
	if parties < 2 {
		return fmt.Errorf("--parties must be at least 2")
	}
	t := resolveThreshold(parties, threshold)

	net := transport.NewInMemoryNetwork()
	ctxs, err := cohort(parties, net, blueprintID, callID, func(i int) string { return partyKeystoreDir(keystoreDir, i) })
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	keys, err := runKeygenAll(ctx, ctxs, t)
	if err != nil {
		return fmt.Errorf("keygen failed: %w", err)
	}

	fmt.Printf("Group key: %s\n", hex.EncodeToString(keys[0][:]))
	fmt.Printf("Keystores written under: %s\n", keystoreDir)
	return nil
}

func runSignCmd(cmd *cobra.Command, args []string) error {
	if parties < 2 {
		return fmt.Errorf("--parties must be at least 2")
	}
	msg, err := readMessage()
	if err != nil {
		return err
	}

	net := transport.NewInMemoryNetwork()
	ctxs, err := cohort(parties, net, blueprintID, callID, func(i int) string { return partyKeystoreDir(keystoreDir, i) })
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sigs, err := runSignAll(ctx, ctxs, keygenCallID, msg)
	if err != nil {
		return fmt.Errorf("signing failed: %w", err)
	}

	fmt.Printf("Signature: %s\n", hex.EncodeToString(sigs[0][:]))
	return nil
}

func runSimulateCmd(cmd *cobra.Command, args []string) error {
	if parties < 2 {
		return fmt.Errorf("--parties must be at least 2")
	}
	t := resolveThreshold(parties, threshold)

	dir, err := os.MkdirTemp("", "wsts-simulate-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	net := transport.NewInMemoryNetwork()
	ctxs, err := cohort(parties, net, blueprintID, callID, func(i int) string { return partyKeystoreDir(dir, i) })
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	keys, err := runKeygenAll(ctx, ctxs, t)
	if err != nil {
		return fmt.Errorf("keygen failed: %w", err)
	}
	fmt.Printf("Group key: %s\n", hex.EncodeToString(keys[0][:]))

	signCtxs := make([]*blueprint.StaticContext, len(ctxs))
	for i, c := range ctxs {
		clone := *c
		clone.CallID = callID + 1
		signCtxs[i] = &clone
	}

	sigs, err := runSignAll(ctx, signCtxs, callID, []byte(message))
	if err != nil {
		return fmt.Errorf("signing failed: %w", err)
	}
	fmt.Printf("Signature: %s\n", hex.EncodeToString(sigs[0][:]))

	verifyKey, err := frost.ParseVerifyingKey(keys[0][:])
	if err != nil {
		return fmt.Errorf("parsing group key: %w", err)
	}
	sig, err := frost.ParseSignature(sigs[0][:])
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}
	if err := frost.Verify(sig, verifyKey, []byte(message)); err != nil {
		return fmt.Errorf("signature failed verification: %w", err)
	}
	fmt.Println("Signature verifies.")
	return nil
}
