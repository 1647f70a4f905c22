// Package executor runs WASI interpreter builds under wazero as long-lived
// sessions.
//
// # Overview
//
// The Executor owns the wazero runtime and caches compiled modules per
// [Language]. A [Session] is one running guest: the language's driver
// script reads length-prefixed requests from stdin and answers each with a
// frame on stderr.
//
//	\x00ANCHOR_READY:\x00            bootstrap finished
//	\x00ANCHOR_DONE:<base64>\x00     value of the evaluated code
//	\x00ANCHOR_ERROR:<base64>\x00    message of the raised error
//	\x00ANCHOR_FATAL:<base64>\x00    bootstrap failed, guest exits
//
// Anything else the guest writes to stderr is kept as diagnostics.
//
// # Basic Usage
//
//	exec, err := executor.New(executor.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	session, err := exec.NewSession(ctx, ruby.New(dir))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	out, err := session.Eval(ctx, `Anchor::Types::String`)
//
// [Module] and [Load] adapt a Language to the interp contracts used by the
// playground.
package executor
