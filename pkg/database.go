package decoder

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"
)

// LoadDatabase replaces the channel roles and dead time constants of config
// with the ones valid for its run.
func LoadDatabase(dbConn *sqlx.DB, config *Configuration) error {
	mapping, err := getChannelMappingFromDB(dbConn, config.RunNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting channel mapping from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	mapping.Apply(config)

	params, found, err := getDeadtimeParamsFromDB(dbConn, config.RunNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting dead time parameters from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	if found {
		config.DeadTimeNs = params.DeadTimeNs
		config.TransitionTimeNs = params.TransitionTimeNs
		config.TofOffsetNs = params.TofOffsetNs
	} else if configuration.Verbosity > 0 {
		message := fmt.Sprintf("No dead time parameters for run %d, keeping configured values", config.RunNumber)
		logger.Info(message, "database")
	}
	return nil
}

// ConnectToDatabase opens the conditions database. For sqlite dbname is the
// database file.
func ConnectToDatabase(driver string, user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	switch driver {
	case "", "mysql":
		port := "3306"
		dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
		return sqlx.Connect("mysql", dbURI)
	case "sqlite":
		return sqlx.Connect("sqlite", dbname)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

type ChannelRole string

const (
	RoleLeft          ChannelRole = "left"
	RoleRight         ChannelRole = "right"
	RoleTargetChanger ChannelRole = "target"
	RoleMonitor       ChannelRole = "monitor"
)

type ChannelMappingEntry struct {
	Channel int         `db:"Channel"`
	Role    ChannelRole `db:"Role"`
	PairID  int         `db:"PairID"`
}

// ChannelMapping is the role of every digitizer channel for a run range.
type ChannelMapping struct {
	Pairs           []ChannelPair
	TargetChangerCh int
	MonitorCh       int
}

// Apply overrides the channel roles of config. Channels listed for singles
// follow the pairs.
func (m ChannelMapping) Apply(config *Configuration) {
	config.Pairs = m.Pairs
	config.TargetChangerCh = m.TargetChangerCh
	config.MonitorCh = m.MonitorCh
	config.SinglesChannels = config.SinglesChannels[:0:0]
	for _, pair := range m.Pairs {
		config.SinglesChannels = append(config.SinglesChannels, pair.Left, pair.Right)
	}
}

type DeadtimeParams struct {
	DeadTimeNs       float64 `db:"DeadTimeNs"`
	TransitionTimeNs float64 `db:"TransitionTimeNs"`
	TofOffsetNs      float64 `db:"TofOffsetNs"`
}

func getChannelMappingFromDB(db *sqlx.DB, runNumber int) (ChannelMapping, error) {
	query := "SELECT Channel, Role, PairID FROM ChannelMapping WHERE MinRun <= ? and MaxRun >= ? ORDER BY PairID, Channel"

	if configuration.Verbosity > 0 {
		logger.Info("Channel mapping read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s [run %d]", query, runNumber)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return ChannelMapping{}, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	mapping := ChannelMapping{TargetChangerCh: -1, MonitorCh: -1}
	pairs := make(map[int]*ChannelPair)
	nEntries := 0
	for rows.Next() {
		result := ChannelMappingEntry{}
		if err := rows.StructScan(&result); err != nil {
			return ChannelMapping{}, fmt.Errorf("error scanning DB row: %w", err)
		}
		if result.Channel < 0 || result.Channel >= NumChannels {
			return ChannelMapping{}, &InvalidChannelError{Offset: -1, Channel: uint32(result.Channel)}
		}
		nEntries++

		switch result.Role {
		case RoleLeft, RoleRight:
			pair, ok := pairs[result.PairID]
			if !ok {
				pair = &ChannelPair{Left: -1, Right: -1}
				pairs[result.PairID] = pair
			}
			if result.Role == RoleLeft {
				pair.Left = result.Channel
			} else {
				pair.Right = result.Channel
			}
		case RoleTargetChanger:
			mapping.TargetChangerCh = result.Channel
		case RoleMonitor:
			mapping.MonitorCh = result.Channel
		default:
			return ChannelMapping{}, fmt.Errorf("unknown role %q for channel %d", result.Role, result.Channel)
		}
	}
	if err := rows.Err(); err != nil {
		return ChannelMapping{}, fmt.Errorf("error reading DB rows: %w", err)
	}
	if nEntries == 0 {
		return ChannelMapping{}, fmt.Errorf("no channel mapping for run %d", runNumber)
	}

	for _, id := range SortedKeys(pairs) {
		pair := pairs[id]
		if pair.Left < 0 || pair.Right < 0 {
			return ChannelMapping{}, fmt.Errorf("pair %d is missing a side", id)
		}
		mapping.Pairs = append(mapping.Pairs, *pair)
	}
	return mapping, nil
}

func getDeadtimeParamsFromDB(db *sqlx.DB, runNumber int) (DeadtimeParams, bool, error) {
	query := "SELECT DeadTimeNs, TransitionTimeNs, TofOffsetNs FROM DeadtimeParams WHERE MinRun <= ? and MaxRun >= ? ORDER BY MinRun DESC LIMIT 1"
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s [run %d]", query, runNumber)
		logger.Info(message, "database")
	}

	var params DeadtimeParams
	err := db.Get(&params, query, runNumber, runNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return params, false, nil
	}
	if err != nil {
		return params, false, fmt.Errorf("error querying database: %w", err)
	}
	return params, true, nil
}
