package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/starford/attic/internal"
	"github.com/starford/attic/internal/attachservice"
	"github.com/starford/attic/internal/mcpserver"
	"github.com/starford/attic/internal/picker"
	"github.com/starford/attic/internal/vaultpath"
)

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func yesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip the confirmation prompt",
	}
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API, scheduled organize passes and the OCR inbox watcher",
			Action: serve,
		},
		{
			Name:  "organize",
			Usage: "Move attachments into the attachment folder",
			Flags: []cli.Flag{
				yesFlag(),
				&cli.BoolFlag{Name: "dry-run", Usage: "Only print the planned moves"},
			},
			Action: withRuntime(organize),
		},
		{
			Name:   "unlinked",
			Usage:  "List attachments no note refers to",
			Action: withRuntime(listUnlinked),
		},
		{
			Name:  "purge",
			Usage: "Delete unlinked attachments",
			Flags: []cli.Flag{
				yesFlag(),
				&cli.BoolFlag{Name: "keep-empty-folders", Usage: "Leave folders emptied by the purge"},
			},
			Action: withRuntime(purge),
		},
		{
			Name:      "move",
			Usage:     "Move every attachment below one folder into another",
			ArgsUsage: "<from> <to>",
			Flags:     []cli.Flag{yesFlag()},
			Action:    withRuntime(moveFolder),
		},
		{
			Name:  "ocr",
			Usage: "Transcribe images and PDFs from the OCR inbox",
			Commands: []*cli.Command{
				{
					Name:   "run",
					Usage:  "Process the watch folder in batches",
					Flags:  []cli.Flag{&cli.BoolFlag{Name: "reprocess", Usage: "Include files already transcribed"}},
					Action: withRuntime(ocrRun),
				},
				{
					Name:      "file",
					Usage:     "Transcribe one file",
					ArgsUsage: "<path>",
					Action:    withRuntime(ocrFile),
				},
				{
					Name:   "pick",
					Usage:  "Pick a file from the watch folder and transcribe it",
					Action: withRuntime(ocrPick),
				},
			},
		},
		{
			Name:   "pick-folder",
			Usage:  "Choose the attachment folder interactively",
			Action: withRuntime(pickFolder),
		},
		{
			Name:   "ignore-subfolder",
			Usage:  "Choose an attachment subfolder to leave untouched",
			Action: withRuntime(ignoreSubfolder),
		},
		{
			Name:  "settings",
			Usage: "Inspect or reset the settings document",
			Commands: []*cli.Command{
				{
					Name:   "show",
					Usage:  "Print the effective settings",
					Action: withRuntime(showSettings),
				},
				{
					Name:   "reset-confirmation",
					Usage:  "Require confirmation before the next automatic organize",
					Action: withRuntime(resetConfirmation),
				},
			},
		},
		{
			Name:   "mcp",
			Usage:  "Serve the MCP tools over stdio",
			Action: withRuntime(serveMCP),
		},
	}
}

// withRuntime opens the shared components for a one-shot command. Logs go to
// stderr so command output stays clean.
func withRuntime(fn func(ctx context.Context, cmd *cli.Command, rt *internal.Runtime) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(stderr))
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(ctx, cmd, rt)
	}
}

func organize(ctx context.Context, cmd *cli.Command, rt *internal.Runtime) error {
	plan, err := rt.Service.Plan(ctx)
	if err != nil {
		return err
	}
	if len(plan.Moves) == 0 {
		fmt.Fprintln(stdout, "Nothing to organize.")
		return nil
	}
	for _, m := range plan.Moves {
		fmt.Fprintf(stdout, "%s -> %s\n", m.From, m.To)
	}
	for _, doc := range plan.Skipped {
		fmt.Fprintf(stdout, "skipped oversized document: %s\n", doc)
	}
	if cmd.Bool("dry-run") {
		fmt.Fprintf(stdout, "%d file(s) would be moved.\n", len(plan.Moves))
		return nil
	}
	if !cmd.Bool("yes") && !confirm(stdin, stdout, fmt.Sprintf("Move %d file(s) into %q?", len(plan.Moves), plan.Root)) {
		fmt.Fprintln(stdout, "Aborted.")
		return nil
	}
	res, err := rt.Service.Organize(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Moved %d, skipped %d, errors %d, links updated %d.\n",
		res.Moved, res.Skipped, res.Errors, res.LinksUpdated)
	return nil
}

func listUnlinked(ctx context.Context, _ *cli.Command, rt *internal.Runtime) error {
	files, err := rt.Service.FindUnlinked(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(stdout, "No unlinked attachments.")
		return nil
	}
	for _, f := range files {
		fmt.Fprintln(stdout, f.Path)
	}
	fmt.Fprintf(stdout, "%d unlinked attachment(s).\n", len(files))
	return nil
}

func purge(ctx context.Context, cmd *cli.Command, rt *internal.Runtime) error {
	files, err := rt.Service.FindUnlinked(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(stdout, "No unlinked attachments.")
		return nil
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		fmt.Fprintln(stdout, f.Path)
		paths = append(paths, f.Path)
	}
	action := "Delete"
	if rt.Settings.Get().PurgeUseTrash {
		action = "Move to trash"
	}
	if !cmd.Bool("yes") && !confirm(stdin, stdout, fmt.Sprintf("%s %d file(s)?", action, len(paths))) {
		fmt.Fprintln(stdout, "Aborted.")
		return nil
	}
	var opts []attachservice.PurgeOption
	if cmd.Bool("keep-empty-folders") {
		opts = append(opts, attachservice.KeepEmptyFolders())
	}
	res, err := rt.Service.PurgeUnlinked(ctx, paths, opts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted %d, errors %d, folders removed %d.\n", res.Deleted, res.Errors, res.FoldersRemoved)
	return nil
}

func moveFolder(ctx context.Context, cmd *cli.Command, rt *internal.Runtime) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("move: expected <from> <to>")
	}
	from, to := cmd.Args().Get(0), cmd.Args().Get(1)
	if !cmd.Bool("yes") && !confirm(stdin, stdout, fmt.Sprintf("Move attachments from %q to %q?", from, to)) {
		fmt.Fprintln(stdout, "Aborted.")
		return nil
	}
	res, err := rt.Service.MoveFolder(ctx, from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Moved %d, skipped %d, errors %d.\n", res.Moved, res.Skipped, res.Errors)
	return nil
}

func ocrRun(ctx context.Context, cmd *cli.Command, rt *internal.Runtime) error {
	res, err := rt.Service.RunOCR(ctx, cmd.Bool("reprocess"))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Processed %d, skipped %d, failed %d.\n", res.Processed, res.Skipped, res.Failed)
	return nil
}

func ocrFile(ctx context.Context, cmd *cli.Command, rt *internal.Runtime) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("ocr file: expected <path>")
	}
	return transcribe(ctx, rt, cmd.Args().First())
}

func ocrPick(ctx context.Context, _ *cli.Command, rt *internal.Runtime) error {
	candidates, err := rt.Service.OCRCandidates()
	if err != nil {
		return err
	}
	choice, err := picker.Run(picker.Config{
		Title:   "Select a file to transcribe",
		Hint:    "Images and PDFs in " + rt.Settings.Get().OCR.WatchFolder,
		Options: candidates,
		Empty:   "No transcribable files in the watch folder.",
	}, stdin, stderr)
	if errors.Is(err, picker.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}
	return transcribe(ctx, rt, choice)
}

func transcribe(ctx context.Context, rt *internal.Runtime, path string) error {
	res, err := rt.Service.ProcessOCRFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s -> %s\n", res.Source, res.Output)
	return nil
}

func pickFolder(_ context.Context, _ *cli.Command, rt *internal.Runtime) error {
	folders, err := rt.Service.Folders()
	if err != nil {
		return err
	}
	choice, err := picker.Run(picker.Config{
		Title:   "Select attachment folder",
		Hint:    "Choose any folder in your vault.",
		Options: folders,
		Empty:   "No folders found in vault.",
	}, stdin, stderr)
	if errors.Is(err, picker.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}
	s, err := rt.Service.SetAttachmentFolder(choice)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Attachment folder set to %q.\n", s.AttachmentFolder)
	return nil
}

func ignoreSubfolder(_ context.Context, _ *cli.Command, rt *internal.Runtime) error {
	subs, err := rt.Service.AttachmentSubfolders()
	if err != nil {
		return err
	}
	root := rt.Settings.Get().AttachmentRoot()
	choice, err := picker.Run(picker.Config{
		Title:   "Select subfolder to ignore",
		Hint:    "Choose a subfolder inside your attachment folder.",
		Options: subs,
		Alias:   func(o string) string { return vaultpath.Join(root, o) },
		Empty:   fmt.Sprintf("No subfolders found under %q. Update the attachment folder setting, then try again.", root),
	}, stdin, stderr)
	if errors.Is(err, picker.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}
	s, err := rt.Service.IgnoreSubfolder(choice)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Ignored subfolders: %s\n", strings.Join(s.IgnoredAttachmentSubfolders, ", "))
	return nil
}

func showSettings(_ context.Context, _ *cli.Command, rt *internal.Runtime) error {
	s := rt.Service.Settings()
	data, err := yaml.Marshal(&s)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

func resetConfirmation(_ context.Context, _ *cli.Command, rt *internal.Runtime) error {
	if _, err := rt.Service.ResetConfirmation(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "The next automatic organize will wait for confirmation.")
	return nil
}

func serveMCP(_ context.Context, _ *cli.Command, rt *internal.Runtime) error {
	return mcpserver.New(rt.Service, version).ServeStdio()
}

// confirm asks a y/N question and reports whether the answer was yes.
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
