package services

import "github.com/prometheus/client_golang/prometheus"

var (
	pagesFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlify_pages_fetched_total",
		Help: "Anzahl der von der DIP-API geholten Seiten, nach Phase.",
	}, []string{"phase"})

	recordsUpsertedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlify_records_upserted_total",
		Help: "Anzahl der geschriebenen Datensätze, nach Tabelle.",
	}, []string{"tabelle"})

	ingestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawlify_ingest_errors_total",
		Help: "Anzahl der nicht-fatalen Fehler während des Abgleichs.",
	})

	ingestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlify_ingest_runs_total",
		Help: "Anzahl der Abgleich-Läufe, nach Ergebnis.",
	}, []string{"ergebnis"})
)

func init() {
	prometheus.MustRegister(pagesFetchedTotal, recordsUpsertedTotal, ingestErrorsTotal, ingestRunsTotal)
}
