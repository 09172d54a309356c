// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/daviszhen/vexec/pkg/compute"
	"github.com/daviszhen/vexec/pkg/server"
	"github.com/daviszhen/vexec/pkg/util"
)

var runCfg *util.Config

func init() {
	loadConfig()
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "vexec.toml"

func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			cfg, err := util.LoadConfig(fpath)
			if err != nil {
				util.Error("load config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			runCfg = cfg
			return
		}
	}
	util.Error("vexec.toml does not exist")
	os.Exit(1)
}

func main() {
	if err := util.InitLogger(runCfg.Debug.LogLevel); err != nil {
		util.Error("init logger failed", zap.Error(err))
		os.Exit(1)
	}
	defer util.Sync()
	eng := compute.NewEngine(runCfg)
	if err := eng.LoadTables(context.Background()); err != nil {
		util.Error("load tables failed", zap.Error(err))
		os.Exit(1)
	}
	if err := server.New(eng).ListenAndServe(); err != nil {
		util.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
