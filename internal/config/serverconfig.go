/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the scheduler's cupsd.conf-shaped configuration
// file and resolves the CUPS_* environment variables that override it.
package config

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	envServerBin  = `CUPS_SERVERBIN`
	envServer     = `CUPS_SERVER`
	envEncryption = `CUPS_ENCRYPTION`
	envUser       = `CUPS_USER`
	envSinkReuse  = `CUPS_MIME_SINK_REUSE`
	envIPPPort    = `IPP_PORT`
	envTmpDir     = `TMPDIR`

	defaultServerBin = `/usr/lib/cups`
	defaultIPPPort   = uint16(631)
	defaultTmpDir    = `/tmp`
	defaultEncrypt   = `IfRequested`
)

var (
	ErrInvalidServerBin = errors.New("CUPS_SERVERBIN does not point to a directory")
)

// ServerConfig is the scheduler-wide configuration, loaded from a
// cupsd.conf-shaped ini file via LoadConfigFile and then overridden by
// the CUPS_* environment variables, matching the precedence the
// original daemon gives the environment over the on-disk config.
type ServerConfig struct {
	Global struct {
		Listen        string
		MaxJobs       int64
		MaxJobsPerUser int64
		TempDir       string
		ServerBin     string
		User          string
		Encryption    string
		SinkReuse     bool
	}
}

// Env holds the resolved environment overlay; it is applied on top of
// whatever ServerConfig.Global was loaded from disk.
type Env struct {
	ServerBin  string
	Server     string
	Encryption string
	User       string
	SinkReuse  bool
	IPPPort    uint16
	TmpDir     string
}

// LoadEnv resolves the CUPS_* environment variables described in the
// external interfaces section: a set variable takes precedence over
// def (usually what was read out of the config file); an unset
// variable falls back to def's value, or to the built-in default
// where def leaves that field empty.
func LoadEnv(def Env) (e Env, err error) {
	if err = LoadEnvVar(&e.ServerBin, envServerBin, orDefault(def.ServerBin, defaultServerBin)); err != nil {
		return
	}
	if err = LoadEnvVar(&e.Server, envServer, def.Server); err != nil {
		return
	}
	if err = LoadEnvVar(&e.Encryption, envEncryption, orDefault(def.Encryption, defaultEncrypt)); err != nil {
		return
	}
	if err = LoadEnvVar(&e.User, envUser, def.User); err != nil {
		return
	}
	if err = LoadEnvVar(&e.SinkReuse, envSinkReuse, def.SinkReuse); err != nil {
		return
	}
	if err = LoadEnvVar(&e.IPPPort, envIPPPort, orDefaultU16(def.IPPPort, defaultIPPPort)); err != nil {
		return
	}
	if err = LoadEnvVar(&e.TmpDir, envTmpDir, orDefault(def.TmpDir, defaultTmpDir)); err != nil {
		return
	}
	if fi, serr := os.Stat(e.ServerBin); serr == nil && !fi.IsDir() {
		err = ErrInvalidServerBin
	}
	return
}

// SinkReuseEnabled reports whether §4.3's sink-pattern cache is gated
// on, reading CUPS_MIME_SINK_REUSE directly so callers that only care
// about the flag don't need a full Env.
func SinkReuseEnabled() bool {
	var v bool
	_ = LoadEnvVar(&v, envSinkReuse, false)
	return v
}

func orDefault(v, def string) string {
	if v == `` {
		return def
	}
	return v
}

func orDefaultU16(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}

// FilterPath joins the resolved CUPS_SERVERBIN with the "filter"
// subdirectory, the conventional home for converter programs that the
// chain planner's edges reference by name.
func (e Env) FilterPath(program string) string {
	return filepath.Join(e.ServerBin, "filter", program)
}

// BackendPath joins the resolved CUPS_SERVERBIN with the "backend"
// subdirectory, the conventional home for device backend programs.
func (e Env) BackendPath(program string) string {
	return filepath.Join(e.ServerBin, "backend", program)
}
