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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/vexec/pkg/compute"
	"github.com/daviszhen/vexec/pkg/server"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initQueryCmd()
	initExplainCmd()
	initServeCmd()
	initStatsCmd()
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	RootCmd.PersistentFlags().Bool("vectorize", false, "run queries on the vectorized engine")
	RootCmd.PersistentFlags().String("deform", util.DeformLate, "deform policy. late, eager")
	RootCmd.PersistentFlags().Int("batch_size", util.DefaultVectorSize, "rows per batch")
	viper.BindPFlag("vectorize.enable", RootCmd.PersistentFlags().Lookup("vectorize"))
	viper.BindPFlag("vectorize.deform", RootCmd.PersistentFlags().Lookup("deform"))
	viper.BindPFlag("vectorize.batchSize", RootCmd.PersistentFlags().Lookup("batch_size"))
}

var cfgFile string
var runCfg = util.DefaultConfig()

///root cmd

var info = "vexec"
var RootCmd = &cobra.Command{
	Use:          "vexec",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use vexec --help or -h")
	},
}

// newEngine builds the engine and loads the configured tables.
func newEngine(ctx context.Context) (*compute.Engine, error) {
	if err := viper.Unmarshal(runCfg); err != nil {
		return nil, err
	}
	if err := runCfg.Validate(); err != nil {
		return nil, err
	}
	if err := util.InitLogger(runCfg.Debug.LogLevel); err != nil {
		return nil, err
	}
	eng := compute.NewEngine(runCfg)
	if err := eng.LoadTables(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}

//query cmd

var queryInfo = "run a SELECT statement"
var querySQL string
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: queryInfo,
	Long:  queryInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		eng, err := newEngine(ctx)
		if err != nil {
			return err
		}
		return runQuery(ctx, eng, querySQL)
	},
}

func runQuery(ctx context.Context, eng *compute.Engine, sql string) error {
	if runCfg.Debug.PrintPlan {
		out, err := eng.Explain(sql)
		if err != nil {
			return err
		}
		fmt.Print(out)
	}
	res, err := eng.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer res.Close()
	if res.Notice != "" {
		fmt.Println("NOTICE:", res.Notice)
	}
	names := make([]string, 0, res.Desc.Natts())
	for _, attr := range res.Desc.Attrs {
		names = append(names, attr.Name)
	}
	fmt.Println(strings.Join(names, "|"))
	cnt := 0
	limit := runCfg.Debug.MaxOutputRowCount
	for limit <= 0 || cnt < limit {
		row, ok, err := res.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		parts := make([]string, len(row))
		for i, val := range row {
			parts[i] = val.String()
		}
		fmt.Println(strings.Join(parts, "|"))
		cnt++
	}
	fmt.Printf("(%d rows)\n", cnt)
	return res.Close()
}

func initQueryCmd() {
	RootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&querySQL, "sql", "", "SELECT statement")
	queryCmd.Flags().Bool("print_plan", false, "print the plan before running")
	queryCmd.Flags().Int("max_rows", 0, "stop after this many rows. 0 is unlimited")
	viper.BindPFlag("debug.printPlan", queryCmd.Flags().Lookup("print_plan"))
	viper.BindPFlag("debug.maxOutputRowCount", queryCmd.Flags().Lookup("max_rows"))
}

//explain cmd

var explainInfo = "print the plan of a SELECT statement"
var explainSQL string
var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: explainInfo,
	Long:  explainInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(context.Background())
		if err != nil {
			return err
		}
		out, err := eng.Explain(explainSQL)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func initExplainCmd() {
	RootCmd.AddCommand(explainCmd)
	explainCmd.Flags().StringVar(&explainSQL, "sql", "", "SELECT statement")
}

//serve cmd

var serveInfo = "serve the postgres wire protocol"
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: serveInfo,
	Long:  serveInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(context.Background())
		if err != nil {
			return err
		}
		defer util.Sync()
		return server.New(eng).ListenAndServe()
	},
}

func initServeCmd() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "127.0.0.1:5432", "listen address")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

//stats cmd

var statsInfo = "print the loaded tables and column store distinct estimates"
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: statsInfo,
	Long:  statsInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(context.Background())
		if err != nil {
			return err
		}
		cat := eng.Storage().Catalog
		for _, name := range cat.Names() {
			rel, err := cat.Lookup(name)
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", name, rel.Kind())
			crel, ok := rel.(*storage.ColumnRelation)
			if !ok {
				continue
			}
			fmt.Printf("  rows: %d\n", crel.Rows())
			for i, attr := range crel.Desc().Attrs {
				fmt.Printf("  %s %s ndv~%d\n", attr.Name, attr.Typ.Name, crel.DistinctEstimate(i))
			}
		}
		return nil
	},
}

func initStatsCmd() {
	RootCmd.AddCommand(statsCmd)
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "vexec.toml"

func loadConfig() {
	paths := make([]string, 0, len(defCfgFilePaths)+1)
	if cfgFile != "" {
		paths = append(paths, cfgFile)
	}
	for _, dirPath := range defCfgFilePaths {
		paths = append(paths, filepath.Join(dirPath, cfgFileName))
	}
	for _, fpath := range paths {
		if !util.FileIsValid(fpath) {
			continue
		}
		viper.SetConfigFile(fpath)
		err := viper.ReadInConfig()
		if err != nil {
			util.Error("viper load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		return
	}
	if cfgFile != "" {
		util.Error("config file does not exist", zap.String("fpath", cfgFile))
		os.Exit(1)
	}
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
