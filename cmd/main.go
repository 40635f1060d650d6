/*
Copyright 2026 Caravel Rentals Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/caravel-rentals/caravel"
	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/database"
	"github.com/caravel-rentals/caravel/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Caravel represents the CLI application, encapsulating the root Cobra command.
type Caravel struct {
	cmd *cobra.Command
}

// caravelInstance holds the runtime service instance and its configuration,
// shared by all subcommands.
type caravelInstance struct {
	caravel *caravel.Caravel
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service instance before
// any command executes.
func preRun(app *caravelInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("caravel.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newCaravel, err := setupCaravel(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.caravel = newCaravel
		app.cnf = cnf

		return nil
	}
}

// setupCaravel connects the datasource and builds the service instance.
func setupCaravel(cfg *config.Configuration) (*caravel.Caravel, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newCaravel, err := caravel.NewCaravel(db)
	if err != nil {
		return nil, fmt.Errorf("error creating caravel: %v", err)
	}
	return newCaravel, nil
}

// NewCLI creates the command-line interface for the Caravel application.
func NewCLI() *Caravel {
	var configFile string
	b := &caravelInstance{}

	var rootCmd = &cobra.Command{
		Use:   "caravel",
		Short: "Car rental booking lifecycle orchestrator",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./caravel.json", "Configuration file for caravel")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands(b))

	return &Caravel{cmd: rootCmd}
}

func (w Caravel) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
