package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/imamik/ec2keeper/internal/keys"
	"github.com/imamik/ec2keeper/internal/store"
	"github.com/imamik/ec2keeper/internal/util/keygen"
)

// stdin is read by keys repair when no file is given.
var stdin io.Reader = os.Stdin

// KeysCreateArgs are the flags of keys create.
type KeysCreateArgs struct {
	Name     string
	PairName string
	// File holds the private key. Empty with Mint asks the cloud for a new
	// key pair.
	File   string
	Mint   bool
	Region string
}

// KeyOutput is the JSON shape of a key record. Content is omitted.
type KeyOutput struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	KeyPairName  string    `json:"keyPairName"`
	DeploymentID string    `json:"deploymentId,omitempty"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func keyOutput(k *store.SSHKey) KeyOutput {
	fingerprint, _ := keygen.Fingerprint([]byte(k.Content))
	return KeyOutput{
		ID:           k.ID,
		Name:         k.Name,
		KeyPairName:  k.KeyPairName,
		DeploymentID: k.DeploymentID,
		Fingerprint:  fingerprint,
		CreatedAt:    k.CreatedAt,
	}
}

// KeysCreate handles keys create.
func KeysCreate(ctx context.Context, opts Options, args KeysCreateArgs) (err error) {
	if args.File == "" && !args.Mint {
		return errors.New("either --file or --mint is required")
	}

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	req := keys.CreateRequest{Name: args.Name, KeyPairName: args.PairName}
	if args.File != "" {
		// #nosec G304
		content, err := os.ReadFile(args.File)
		if err != nil {
			return fmt.Errorf("failed to read key file: %w", err)
		}
		req.Content = string(content)
	} else {
		region := args.Region
		if region == "" {
			region = rt.cfg.Region
		}
		creds := rt.creds
		req.Region = region
		req.Credentials = &creds
	}

	rec, err := rt.keys.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}
	fmt.Fprintf(stdout, "Stored key %s for key pair %s\n", rec.ID, rec.KeyPairName)
	return nil
}

// KeysGetArgs are the flags of keys get. Exactly one of ID, PairName, and
// InstanceID selects the key.
type KeysGetArgs struct {
	ID         string
	PairName   string
	InstanceID string
	Region     string
	// Write copies the key to the local key directory and prints the path.
	Write bool
	JSON  bool
}

// KeysGet handles keys get.
func KeysGet(ctx context.Context, opts Options, args KeysGetArgs) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	var rec *store.SSHKey
	switch {
	case args.ID != "":
		rec, err = rt.keys.Get(ctx, args.ID)
	case args.PairName != "":
		rec, err = rt.keys.GetByPairName(ctx, args.PairName)
	case args.InstanceID != "":
		region := args.Region
		if region == "" {
			region = rt.cfg.Region
		}
		rec, err = rt.keys.GetForInstance(ctx, args.InstanceID, region, rt.creds)
	default:
		return errors.New("one of --id, --pair, or --instance is required")
	}
	if err != nil {
		return fmt.Errorf("failed to get key: %w", err)
	}

	if args.Write {
		path, err := rt.keys.WriteToFile(rec.KeyPairName, rec.Content)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, path)
		return nil
	}
	if args.JSON {
		return printJSON(keyOutput(rec))
	}
	_, err = fmt.Fprint(stdout, rec.Content)
	return err
}

// KeysVerify handles keys verify. It fails when the key does not log in.
func KeysVerify(ctx context.Context, opts Options, pairName, host string) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	rec, err := rt.keys.GetByPairName(ctx, pairName)
	if err != nil {
		return fmt.Errorf("failed to get key %s: %w", pairName, err)
	}
	if !rt.keys.VerifyKey(ctx, rec.Content, rec.KeyPairName, host) {
		return fmt.Errorf("key %s was rejected by %s", pairName, host)
	}
	fmt.Fprintf(stdout, "Key %s logs in to %s as %s\n", pairName, host, rt.cfg.SSH.User)
	return nil
}

// KeysRepair handles keys repair. It reads a PEM from path, or stdin when
// path is empty, and prints the canonical form.
func KeysRepair(path string) error {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		// #nosec G304
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	repaired, ok := keys.Repair(string(data))
	if !ok {
		return errors.New("input has no PEM header and footer")
	}
	_, err = fmt.Fprintln(stdout, repaired)
	return err
}

// KeysList handles keys list.
func KeysList(ctx context.Context, opts Options, jsonOutput bool) (err error) {
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer closeRuntime(rt, &err)

	records, err := rt.keys.List(ctx)
	if err != nil {
		return err
	}

	out := make([]KeyOutput, 0, len(records))
	for i := range records {
		out = append(out, keyOutput(&records[i]))
	}
	if jsonOutput {
		return printJSON(out)
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKEY PAIR\tDEPLOYMENT\tCREATED")
	for _, k := range out {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.KeyPairName, k.DeploymentID, k.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

