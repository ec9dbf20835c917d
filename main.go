package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/ebfe/scard"
	"github.com/moov-io/bertlv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/gregLibert/openpgp-token/pkg/iso7816"
	"github.com/gregLibert/openpgp-token/pkg/logging"
	"github.com/gregLibert/openpgp-token/pkg/openpgp"
	"github.com/gregLibert/openpgp-token/pkg/storage"
	"github.com/gregLibert/openpgp-token/pkg/tlv"
)

// digestInfoSHA1 is the DER prefix turning a SHA-1 hash into the DigestInfo
// structure PSO:CDS expects.
var digestInfoSHA1 = tlv.Hex("30 21 30 09 06 05 2B 0E 03 02 1A 05 00 04 14")

func main() {
	root := &cobra.Command{
		Use:   "opgp",
		Short: "OpenPGP token: soft-token demo flows and PC/SC probing",
	}

	root.PersistentFlags().String("config", "", "config file (default: ./opgp.yaml if present)")
	root.PersistentFlags().String("state-dir", "opgp-state", "directory holding the soft token's persistent records")
	root.PersistentFlags().String("reader", "", "PC/SC reader name (default: first available)")
	root.PersistentFlags().Bool("debug", false, "log APDU traffic")

	cobra.OnInitialize(func() { initConfig(root) })

	root.AddCommand(demoCommand(), probeCommand(), verifyCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig(root *cobra.Command) {
	if cfgFile, _ := root.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("opgp")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("OPGP")
	viper.AutomaticEnv()

	for _, key := range []string{"state-dir", "reader", "debug"} {
		if err := viper.BindPFlag(key, root.PersistentFlags().Lookup(key)); err != nil {
			log.Fatalf("flag binding failed: %v", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("config file error: %v", err)
		}
	}
}

func newLogger() *logging.Logger {
	return logging.NewLogger(viper.GetBool("debug"))
}

// softTokenClient builds a file-backed token, its worker, and a client over
// it. The returned cleanup stops the worker.
func softTokenClient() (*iso7816.Client, func(), error) {
	backend, err := storage.NewFile(viper.GetString("state-dir"))
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger()
	token, err := openpgp.New(backend, openpgp.Config{Logger: logger})
	if err != nil {
		return nil, nil, err
	}

	worker := openpgp.NewWorker(token)
	client := iso7816.NewClient(worker)
	client.Log = logger
	return client, worker.Close, nil
}

// readerClient connects to a physical card through PC/SC.
func readerClient() (*iso7816.Client, func(), error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("establishing PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, nil, fmt.Errorf("no smart card reader found")
	}

	name := viper.GetString("reader")
	if name == "" {
		name = readers[0]
	}
	fmt.Printf(">> Using reader: %s\n", name)

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		ctx.Release()
		return nil, nil, fmt.Errorf("connecting to card: %w", err)
	}

	cleanup := func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: failed to disconnect card: %v", err)
		}
		if err := ctx.Release(); err != nil {
			log.Printf("Warning: failed to release context: %v", err)
		}
	}

	client := iso7816.NewClient(card)
	client.Log = newLogger()
	return client, cleanup, nil
}

func clientFor(target string) (*iso7816.Client, func(), error) {
	if target == "reader" {
		return readerClient()
	}
	return softTokenClient()
}

func mustSend(client *iso7816.Client, step string, cmd *iso7816.CommandAPDU) iso7816.Trace {
	trace, err := client.Send(cmd)
	if err != nil {
		log.Fatalf("%s: %v", step, err)
	}
	fmt.Printf("   %-28s %s\n", step, trace.Status().Verbose())
	return trace
}

// demoCommand walks a fresh soft token through its whole life: select,
// factory passwords, key import, signing, single-shot behavior.
func demoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Exercise a soft token end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := softTokenClient()
			if err != nil {
				return err
			}
			defer cleanup()

			cls, _ := iso7816.NewClass(0x00)

			fmt.Println(">> Step 1: SELECT OpenPGP application")
			mustSend(client, "SELECT AID", iso7816.SelectByAID(cls, openpgp.RID))

			fmt.Println(">> Step 2: factory credentials")
			mustSend(client, "VERIFY PW3 (factory)",
				iso7816.Verify(cls, iso7816.RefPW3, []byte(openpgp.DefaultPW3)))
			mustSend(client, "VERIFY PW1 (factory)",
				iso7816.Verify(cls, iso7816.RefPW1Sign, []byte(openpgp.DefaultPW1)))

			fmt.Println(">> Step 3: import a signing key")
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return err
			}
			mustSend(client, "PUT DATA (key import)",
				iso7816.PutDataOdd(cls, 0x3FFF, keyImportPayload(byte(iso7816.KeySign), key)))

			fmt.Println(">> Step 4: sign")
			digest := sha1.Sum([]byte("hello, token"))
			digestInfo := append(append([]byte{}, digestInfoSHA1...), digest[:]...)

			trace := mustSend(client, "PSO:CDS", iso7816.ComputeDigitalSignature(cls, digestInfo))
			if !trace.IsSuccess() {
				return fmt.Errorf("signature refused: %s", trace.Status().Verbose())
			}
			sig := trace.Data()
			fmt.Printf("   signature: %s...\n", hex.EncodeToString(sig[:16]))

			if err := rsa.VerifyPKCS1v15(&key.PublicKey, 0, digestInfo, sig); err != nil {
				return fmt.Errorf("signature did not verify: %w", err)
			}
			fmt.Println("   signature verifies against the imported key")

			fmt.Println(">> Step 5: single-shot PW1")
			trace = mustSend(client, "PSO:CDS (again)", iso7816.ComputeDigitalSignature(cls, digestInfo))
			if trace.Status() == iso7816.SWSecurityFailure {
				fmt.Println("   second signature refused: PW1 was consumed, as configured")
			}

			fmt.Println(">> Step 6: public key readback")
			trace = mustSend(client, "GAKP (read)", iso7816.ReadPublicKey(cls, iso7816.KeySign))
			fmt.Printf("   public key template: %d bytes\n", len(trace.Data()))

			fmt.Println(">> Demo finished")
			return nil
		},
	}
}

// probeCommand reads the public data objects of a card (real or soft) and
// prints them.
func probeCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Select the OpenPGP application and dump its data objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := clientFor(target)
			if err != nil {
				return err
			}
			defer cleanup()

			cls, _ := iso7816.NewClass(0x00)

			trace := mustSend(client, "SELECT AID", iso7816.SelectByAID(cls, openpgp.RID))
			if !trace.IsSuccess() {
				return fmt.Errorf("no OpenPGP application present")
			}

			trace = mustSend(client, "GET DATA 6E", iso7816.GetData(cls, 0x006E))
			if trace.IsSuccess() {
				var app applicationData
				if err := tlv.Unmarshal(trace.Data(), &app); err != nil {
					return fmt.Errorf("parsing application data: %w", err)
				}
				fmt.Println(tlv.Describe("APPLICATION RELATED DATA", &app))
			}

			trace = mustSend(client, "GET DATA 65", iso7816.GetData(cls, 0x0065))
			if trace.IsSuccess() {
				var holder cardholderData
				if err := tlv.Unmarshal(trace.Data(), &holder); err != nil {
					return fmt.Errorf("parsing cardholder data: %w", err)
				}
				fmt.Println(tlv.Describe("CARDHOLDER RELATED DATA", &holder))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "soft", "card to probe: soft or reader")
	return cmd
}

// verifyCommand prompts for a PIN (no echo) and presents it.
func verifyCommand() *cobra.Command {
	var target string
	var admin bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Present PW1 (or PW3 with --admin) to the card",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := clientFor(target)
			if err != nil {
				return err
			}
			defer cleanup()

			ref := iso7816.RefPW1Sign
			label := "PW1"
			if admin {
				ref = iso7816.RefPW3
				label = "PW3"
			}

			fmt.Printf("Enter %s: ", label)
			pin, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading PIN: %w", err)
			}

			cls, _ := iso7816.NewClass(0x00)
			mustSend(client, "SELECT AID", iso7816.SelectByAID(cls, openpgp.RID))
			trace := mustSend(client, "VERIFY "+label, iso7816.Verify(cls, ref, pin))

			if !trace.IsSuccess() {
				return fmt.Errorf("verification refused: %s", trace.Status().Verbose())
			}
			fmt.Println("verified")
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "soft", "card to talk to: soft or reader")
	cmd.Flags().BoolVar(&admin, "admin", false, "present PW3 instead of PW1")
	return cmd
}

// Parsed views of the constructed DOs, for probe output.

type cardholderData struct {
	Name       []byte       `tlv:"5B" fmt:"ascii"`
	Language   []byte       `tlv:"5F2D" fmt:"ascii"`
	Salutation []byte       `tlv:"5F35" fmt:"int"`
	Unknown    []bertlv.TLV `tlv:",unknown"`
}

type applicationData struct {
	AID             []byte             `tlv:"4F"`
	HistoricalBytes []byte             `tlv:"5F52"`
	Discretionary   *discretionaryData `tlv:"73"`
	Unknown         []bertlv.TLV       `tlv:",unknown"`
}

type discretionaryData struct {
	ExtendedCaps   []byte       `tlv:"C0"`
	AlgoAttrSign   []byte       `tlv:"C1"`
	AlgoAttrDec    []byte       `tlv:"C2"`
	AlgoAttrAuth   []byte       `tlv:"C3"`
	PWStatus       []byte       `tlv:"C4"`
	Fingerprints   []byte       `tlv:"C5"`
	CAFingerprints []byte       `tlv:"C6"`
	GenDates       []byte       `tlv:"CD"`
	Unknown        []bertlv.TLV `tlv:",unknown"`
}

// keyImportPayload builds the extended header list (4D) installing an RSA
// key: control reference, 7F48 cardinality template, 5F48 key material
// (public exponent, prime p, prime q).
func keyImportPayload(ref byte, key *rsa.PrivateKey) []byte {
	e := []byte{byte(key.E >> 24), byte(key.E >> 16), byte(key.E >> 8), byte(key.E)}
	p := key.Primes[0].Bytes()
	q := key.Primes[1].Bytes()

	material := make([]byte, 0, len(e)+len(p)+len(q))
	material = append(material, e...)
	material = append(material, p...)
	material = append(material, q...)

	var cardinality []byte
	cardinality = append(cardinality, 0x91)
	cardinality = append(cardinality, derLength(len(e))...)
	cardinality = append(cardinality, 0x92)
	cardinality = append(cardinality, derLength(len(p))...)
	cardinality = append(cardinality, 0x93)
	cardinality = append(cardinality, derLength(len(q))...)

	var inner []byte
	inner = append(inner, ref, 0x00)
	inner = append(inner, 0x7F, 0x48)
	inner = append(inner, derLength(len(cardinality))...)
	inner = append(inner, cardinality...)
	inner = append(inner, 0x5F, 0x48)
	inner = append(inner, derLength(len(material))...)
	inner = append(inner, material...)

	var payload []byte
	payload = append(payload, 0x4D)
	payload = append(payload, derLength(len(inner))...)
	payload = append(payload, inner...)
	return payload
}

func derLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n <= 0xFF:
		return []byte{0x81, byte(n)}
	default:
		return []byte{0x82, byte(n >> 8), byte(n)}
	}
}
