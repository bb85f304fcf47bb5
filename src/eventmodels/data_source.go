package eventmodels

type DataSource string

const (
	DataSourceStreaming    DataSource = "streaming"
	DataSourceSnapshotOnly DataSource = "snapshot_only"
)
