package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipstream/homecloud/internal/crypto"
	"github.com/slipstream/homecloud/internal/database"
	"github.com/slipstream/homecloud/internal/history"
	"github.com/slipstream/homecloud/internal/remote"
	"github.com/slipstream/homecloud/internal/remote/types"
	"github.com/slipstream/homecloud/internal/session"
)

var (
	taskCategory string
	taskPos      int
	taskNumber   int

	addPath      string
	addNoHistory bool
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the peers registered to the account",
	Args:  cobra.NoArgs,
	RunE:  runPeers,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <pid>",
	Short: "List one page of a peer's tasks",
	Long: `List one page of a peer's tasks in a category.

Categories: downloading (0), finished (1), recycle (2), failed (3).`,
	Args: cobra.ExactArgs(1),
	RunE: runTasks,
}

var checkCmd = &cobra.Command{
	Use:   "check <pid> <url>...",
	Short: "Validate URLs on a peer without submitting them",
	Long: `Ask the peer to resolve each URL. URLs the peer rejects are skipped and
logged; the accepted ones are printed as task descriptors.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCheck,
}

var addCmd = &cobra.Command{
	Use:   "add <pid> <url>...",
	Short: "Validate URLs and submit the accepted ones as download tasks",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAdd,
}

func init() {
	tasksCmd.Flags().StringVar(&taskCategory, "category", "downloading", "task category (name or number)")
	tasksCmd.Flags().IntVar(&taskPos, "pos", 0, "offset of the first task")
	tasksCmd.Flags().IntVar(&taskNumber, "number", types.DefaultListLimit, "page size")

	addCmd.Flags().StringVarP(&addPath, "path", "p", "", "download directory on the peer (default remote.default_path)")
	addCmd.Flags().BoolVar(&addNoHistory, "no-history", false, "do not record the submission in the history database")
}

// newRemoteClient builds an authenticated client from the loaded configuration.
func newRemoteClient(ctx context.Context) (*remote.Client, error) {
	var secrets session.Decrypter
	if cfg.Session.Passphrase != "" {
		salt, err := crypto.DecodeSalt(cfg.Session.Salt)
		if err != nil {
			return nil, fmt.Errorf("invalid session.salt: %w", err)
		}
		secrets = crypto.NewSecretStore(cfg.Session.Passphrase, salt)
	}

	sess, err := session.New(session.Config{
		BaseURL:   cfg.Remote.BaseURL,
		Timeout:   cfg.Remote.Timeout,
		UserAgent: cfg.Remote.UserAgent,
		UserID:    cfg.Session.UserID,
		SessionID: cfg.Session.SessionID,
		Cookies:   cfg.Session.Cookies,
	}, secrets, log.Logger)
	if err != nil {
		return nil, err
	}

	return remote.New(ctx, sess, &types.ClientConfig{
		BaseURL:     cfg.Remote.BaseURL,
		DefaultPath: cfg.Remote.DefaultPath,
	}, log.Logger)
}

func runPeers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := newRemoteClient(ctx)
	if err != nil {
		return err
	}

	peers, err := client.ListPeers(ctx)
	if err != nil {
		return err
	}
	if peers == nil {
		peers = []types.Peer{}
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat, peers)
}

func runTasks(cmd *cobra.Command, args []string) error {
	category, err := types.ParseListType(taskCategory)
	if err != nil {
		return err
	}
	if taskPos < 0 || taskNumber < 0 {
		return fmt.Errorf("--pos and --number must not be negative")
	}

	ctx := cmd.Context()
	client, err := newRemoteClient(ctx)
	if err != nil {
		return err
	}

	tasks, err := client.ListTasks(ctx, args[0], category, remote.WithOffset(taskPos), remote.WithLimit(taskNumber))
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat, tasks)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := newRemoteClient(ctx)
	if err != nil {
		return err
	}

	descriptors, err := client.CheckURLs(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), outputFormat, descriptors)
}

type addOutput struct {
	BatchID   string                 `json:"batchId,omitempty"`
	Path      string                 `json:"path"`
	Submitted []types.TaskDescriptor `json:"submitted"`
	Rtn       int                    `json:"rtn"`
	Results   []types.SubmittedTask  `json:"results"`
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := newRemoteClient(ctx)
	if err != nil {
		return err
	}

	pid := args[0]
	path := addPath
	if path == "" {
		path = cfg.Remote.DefaultPath
	}

	descriptors, result, err := remote.AddURLs(ctx, client, pid, path, args[1:])
	if err != nil {
		return err
	}

	out := addOutput{
		Path:      path,
		Submitted: descriptors,
		Rtn:       result.Rtn,
		Results:   result.Tasks,
	}
	if out.Results == nil {
		out.Results = []types.SubmittedTask{}
	}

	if !addNoHistory && !result.Empty() {
		batchID, err := recordHistory(ctx, pid, path, descriptors, result)
		if err != nil {
			log.Warn().Err(err).Msg("failed to record submission history")
		}
		out.BatchID = batchID
	}

	return writeOutput(cmd.OutOrStdout(), outputFormat, out)
}

func recordHistory(ctx context.Context, pid, path string, descriptors []types.TaskDescriptor, result *types.SubmitResult) (string, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	return history.NewService(db.Conn(), log.Logger).Record(ctx, pid, path, descriptors, result)
}
