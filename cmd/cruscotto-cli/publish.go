package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"cruscotto/internal/console"
	"cruscotto/internal/services"
	"cruscotto/internal/storage"
)

func (a *app) publishCmd() *cobra.Command {
	var q services.ReportQuery
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Queue the variance report for publishing to the report sheet",
		Long: `Records a publish request and hands it to the worker over AMQP. Requires
AMQP_URL or the sqlite backend; cruscotto-worker does the actual writing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reports, _, cleanup, err := a.openReports(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			pub, err := reports.RequestPublish(cmd.Context(), q)
			if err != nil {
				return err
			}
			console.Success("Queued publication %s (%s vs %s)", pub.ID, pub.Period1, pub.Period2)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Period1, "period-1", "", "first period (default: latest actual)")
	cmd.Flags().StringVar(&q.Period2, "period-2", "", "second period (default: the one before)")
	cmd.Flags().BoolVarP(&q.ShowDetail, "detail", "d", false, "include line items for the detail categories")
	return cmd
}

func (a *app) publicationsCmd() *cobra.Command {
	var (
		limit int
		db    string
	)
	cmd := &cobra.Command{
		Use:   "publications",
		Short: "List recent publish requests and their outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1")
			}
			if db == "" {
				db = a.cfg.SQLiteDBPath
			}
			repo, err := storage.NewSQLiteRepository(db)
			if err != nil {
				return err
			}
			defer repo.Close()

			pubs, err := repo.RecentPublications(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(pubs) == 0 {
				console.Info("No publications recorded in %s", db)
				return nil
			}
			out, err := console.RenderRecords(publicationRecords(pubs))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of publications to show")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path (default: SQLITE_DB_PATH)")
	return cmd
}

func publicationRecords(pubs []storage.Publication) [][]string {
	records := [][]string{{"ID", "Periodo 1", "Periodo 2", "Dettaglio", "Stato", "Tentativi", "Foglio", "Errore", "Aggiornata"}}
	for _, p := range pubs {
		detail := "no"
		if p.ShowDetail {
			detail = "sì"
		}
		records = append(records, []string{
			p.ID,
			p.Period1,
			p.Period2,
			detail,
			p.Status,
			strconv.Itoa(p.Attempts),
			p.SheetRef,
			p.Error,
			p.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return records
}
