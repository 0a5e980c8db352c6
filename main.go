/*
Command-line front end of the asset manager. It opens a project
directory (anima.toml plus the asset folder), and lists, imports,
loads, creates or deletes assets, or keeps watching the folder.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/spaghettifunk/anima-assets/engine"
	"github.com/spaghettifunk/anima-assets/engine/assets"
	"github.com/spaghettifunk/anima-assets/engine/assets/serializers"
	"github.com/spaghettifunk/anima-assets/engine/core"
)

const usage = `Usage: anima-assets [flags] <command> [args]

Commands:
  list                          print the asset registry
  import <path>...              import files into the registry
  load <path|handle>...         load assets and report their state
  delete <path|handle>...       remove assets from the registry
  create <kind> <dir> <name>    create a material, scene or script
  watch                         keep the registry in sync with the disk

Flags:
`

func main() {
	fs := flag.NewFlagSet("anima-assets", flag.ExitOnError)
	project := fs.StringP("project", "p", ".", "project directory containing anima.toml")
	logLevel := fs.String("log-level", "", "log level override (debug, info, warn, error)")
	watch := fs.Bool("watch", false, "watch the asset directory, implied by the watch command")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	command, args := fs.Arg(0), fs.Args()[1:]

	config, err := engine.LoadApplicationConfig(*project)
	if err != nil {
		core.LogFatal("Failed to load the project configuration: %s", err)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	config.Watch = *watch || command == "watch"

	e, err := engine.New(&engine.Game{ApplicationConfig: config})
	if err != nil {
		core.LogFatal("Failed to create the engine: %s", err)
	}
	if err := e.Initialize(); err != nil {
		core.LogFatal("Failed to initialize the engine: %s", err)
	}

	if err := run(e, command, args); err != nil {
		_ = e.Shutdown()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("Shutdown failed: %s", err)
		os.Exit(1)
	}
}

func run(e *engine.Engine, command string, args []string) error {
	rm := e.Resources()
	switch command {
	case "list":
		return list(rm)
	case "import":
		for _, path := range args {
			h := rm.ImportAsset(path)
			if !h.IsValid() {
				return fmt.Errorf("could not import '%s'", path)
			}
			fmt.Printf("%s %s\n", h, path)
		}
		return nil
	case "load":
		handles := make([]assets.AssetHandle, 0, len(args))
		for _, arg := range args {
			h, err := lookup(rm, arg)
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}
		loaded, err := e.Preload(handles)
		if err != nil {
			return err
		}
		for _, h := range handles {
			asset, err := rm.GetAsset(h)
			if err != nil {
				fmt.Printf("%s failed: %s\n", h, err)
				continue
			}
			fmt.Printf("%s loaded %T\n", h, asset)
		}
		fmt.Printf("%d of %d assets loaded\n", loaded, len(handles))
		return nil
	case "delete":
		for _, arg := range args {
			h, err := lookup(rm, arg)
			if err != nil {
				return err
			}
			rm.DeleteAsset(h)
		}
		return nil
	case "create":
		if len(args) != 3 {
			return fmt.Errorf("create needs <kind> <dir> <name>")
		}
		return create(rm, args[0], args[1], args[2])
	case "watch":
		return watchProject(e)
	}
	return fmt.Errorf("unknown command '%s'", command)
}

func list(rm *assets.ResourceManager) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tKIND\tPATH")
	for _, meta := range rm.GetAssetRegistry() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", meta.Handle, meta.Kind, meta.FilePath)
	}
	return w.Flush()
}

// lookup accepts either a registered path or a hex handle.
func lookup(rm *assets.ResourceManager, arg string) (assets.AssetHandle, error) {
	if h := rm.GetAssetHandleFromFilePath(arg); h.IsValid() {
		return h, nil
	}
	h, err := assets.ParseAssetHandle(arg)
	if err == nil && rm.IsValidAssetHandle(h) {
		return h, nil
	}
	return assets.InvalidHandle, fmt.Errorf("%w: '%s'", core.ErrNotFound, arg)
}

func create(rm *assets.ResourceManager, kind, dir, name string) error {
	var (
		asset assets.Asset
		err   error
	)
	switch kind {
	case "material":
		asset, err = assets.CreateAsset(rm, dir, name, serializers.NewMaterial(name, "Shader.Builtin.Material"))
	case "scene":
		asset, err = assets.CreateAsset(rm, dir, name, serializers.NewScene(name))
	case "script":
		asset, err = assets.CreateAsset(rm, dir, name, serializers.NewScript(""))
	default:
		return fmt.Errorf("%w: cannot create '%s'", core.ErrUnknownKind, kind)
	}
	if err != nil {
		return err
	}
	h := asset.Handle()
	meta, _ := rm.GetMetadata(h)
	fmt.Printf("%s %s\n", h, meta.FilePath)
	return nil
}

func watchProject(e *engine.Engine) error {
	rm := e.Resources()
	for _, code := range []core.SystemEventCode{
		core.EVENT_CODE_ASSET_RELOADED,
		core.EVENT_CODE_ASSET_RENAMED,
		core.EVENT_CODE_ASSET_DELETED,
	} {
		rm.Events().Register(code, e, func(code core.SystemEventCode, _ interface{}, _ interface{}, ctx core.EventContext) bool {
			core.LogInfo("Asset event %d: %016X %s", code, ctx.Handle, ctx.Path)
			return false
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		cancel()
	}()

	return e.Run(ctx)
}
