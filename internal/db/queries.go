package db

var MigrateSQL = `
CREATE TABLE IF NOT EXISTS test_cases(
  project_id      TEXT NOT NULL,
  test_case_id    TEXT NOT NULL,
  section         TEXT NOT NULL,
  entity_name     TEXT NOT NULL,
  name            TEXT NOT NULL,
  tags            JSON NOT NULL DEFAULT '[]',
  method          TEXT NOT NULL DEFAULT '',
  test_type       TEXT NOT NULL DEFAULT 'positive',
  scenario        TEXT NOT NULL DEFAULT '',
  status          TEXT NOT NULL DEFAULT 'active',
  last_run        timestamp,
  last_run_status TEXT NOT NULL DEFAULT '',
  created_at      timestamp default current_timestamp,
  updated_at      timestamp default current_timestamp,
  PRIMARY KEY (project_id, test_case_id)
);
CREATE INDEX IF NOT EXISTS test_cases_entity ON test_cases(project_id, entity_name);

CREATE TABLE IF NOT EXISTS test_steps(
  project_id     TEXT NOT NULL,
  step_id        TEXT NOT NULL,
  section        TEXT NOT NULL,
  entity_name    TEXT NOT NULL,
  name           TEXT NOT NULL,
  type           TEXT NOT NULL,
  definition     TEXT NOT NULL DEFAULT '',
  implementation TEXT NOT NULL DEFAULT '',
  parameters     JSON NOT NULL DEFAULT '[]',
  status         TEXT NOT NULL DEFAULT 'active',
  created_at     timestamp default current_timestamp,
  PRIMARY KEY (project_id, step_id)
);

CREATE TABLE IF NOT EXISTS test_executions(
  execution_id      TEXT PRIMARY KEY,
  project_id        TEXT NOT NULL,
  entity_name       TEXT NOT NULL DEFAULT '',
  filters           JSON NOT NULL DEFAULT '{}',
  environment       TEXT NOT NULL DEFAULT '',
  status            TEXT NOT NULL,
  started_at        timestamp,
  completed_at      timestamp,
  total_scenarios   INTEGER NOT NULL DEFAULT 0,
  passed_scenarios  INTEGER NOT NULL DEFAULT 0,
  failed_scenarios  INTEGER NOT NULL DEFAULT 0,
  skipped_scenarios INTEGER NOT NULL DEFAULT 0,
  execution_time    INTEGER NOT NULL DEFAULT 0,
  error_message     TEXT NOT NULL DEFAULT '',
  created_at        timestamp default current_timestamp
);
CREATE INDEX IF NOT EXISTS test_executions_entity ON test_executions(project_id, entity_name);

CREATE TABLE IF NOT EXISTS test_results(
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  execution_id  TEXT NOT NULL REFERENCES test_executions(execution_id) ON DELETE CASCADE,
  test_case_id  TEXT NOT NULL DEFAULT '',
  scenario_name TEXT NOT NULL,
  feature_uri   TEXT NOT NULL DEFAULT '',
  line          INTEGER NOT NULL DEFAULT 0,
  tags          JSON NOT NULL DEFAULT '[]',
  status        TEXT NOT NULL,
  duration      REAL NOT NULL DEFAULT 0,
  steps         JSON NOT NULL DEFAULT '[]',
  error_message TEXT NOT NULL DEFAULT '',
  created_at    timestamp default current_timestamp
);
CREATE INDEX IF NOT EXISTS test_results_case ON test_results(test_case_id);

CREATE TABLE IF NOT EXISTS test_suites(
  suite_id       TEXT PRIMARY KEY,
  project_id     TEXT NOT NULL,
  kind           TEXT NOT NULL,
  name           TEXT NOT NULL,
  entity_name    TEXT NOT NULL DEFAULT '',
  test_cases     JSON NOT NULL DEFAULT '[]',
  test_sets      JSON NOT NULL DEFAULT '[]',
  status         TEXT NOT NULL DEFAULT 'idle',
  total          INTEGER NOT NULL DEFAULT 0,
  passed         INTEGER NOT NULL DEFAULT 0,
  failed         INTEGER NOT NULL DEFAULT 0,
  skipped        INTEGER NOT NULL DEFAULT 0,
  execution_time INTEGER NOT NULL DEFAULT 0,
  execution_logs TEXT NOT NULL DEFAULT '',
  last_run       timestamp
);

CREATE TABLE IF NOT EXISTS bugs(
  project_id     TEXT NOT NULL,
  bug_id         TEXT NOT NULL,
  section        TEXT NOT NULL,
  entity_name    TEXT NOT NULL,
  title          TEXT NOT NULL,
  description    TEXT NOT NULL DEFAULT '',
  severity       TEXT NOT NULL,
  type           TEXT NOT NULL,
  priority       TEXT NOT NULL,
  status         TEXT NOT NULL,
  error_message  TEXT NOT NULL DEFAULT '',
  error_type     TEXT NOT NULL DEFAULT '',
  error_code     TEXT NOT NULL DEFAULT '',
  error_stack    TEXT NOT NULL DEFAULT '',
  test_case_id   TEXT NOT NULL DEFAULT '',
  test_case_name TEXT NOT NULL DEFAULT '',
  execution_id   TEXT NOT NULL DEFAULT '',
  created_at     timestamp default current_timestamp,
  updated_at     timestamp default current_timestamp,
  PRIMARY KEY (project_id, bug_id)
);
`

var (
	SelectTestCaseIDsSQL = `
select test_case_id from test_cases
 where project_id = ? and substr(test_case_id, 1, ?) = ?;
`
	selectTestCaseColumns = `
select project_id, test_case_id, section, entity_name, name, tags, method,
       test_type, scenario, status, last_run, last_run_status, created_at, updated_at
  from test_cases
`
	ListTestCasesSQL    = selectTestCaseColumns + ` where project_id = ? and lower(entity_name) = lower(?) order by created_at, test_case_id;`
	ListAllTestCasesSQL = selectTestCaseColumns + ` where project_id = ? order by entity_name, created_at, test_case_id;`
	GetTestCaseSQL      = selectTestCaseColumns + ` where project_id = ? and test_case_id = ?;`
	InsertTestCaseSQL   = `
insert into test_cases(project_id, test_case_id, section, entity_name, name, tags, method,
                       test_type, scenario, status, last_run, last_run_status, created_at, updated_at)
            values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	UpdateTestCaseSQL = `
update test_cases
   set name = ?, tags = ?, method = ?, test_type = ?, scenario = ?, status = ?, updated_at = ?
 where project_id = ? and test_case_id = ?;
`
	UpdateLastRunSQL = `
update test_cases set last_run = ?, last_run_status = ?
 where project_id = ? and test_case_id = ?;
`
	DeleteTestCasesSQL = `
delete from test_cases where project_id = ? and lower(entity_name) = lower(?);
`
)

var (
	StepExistsSQL = `
select count(*) from test_steps where project_id = ? and step_id = ?;
`
	InsertTestStepSQL = `
insert into test_steps(project_id, step_id, section, entity_name, name, type,
                       definition, implementation, parameters, status, created_at)
            values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	ListTestStepsSQL = `
select project_id, step_id, section, entity_name, name, type, definition,
       implementation, parameters, status, created_at
  from test_steps
 where project_id = ? and lower(entity_name) = lower(?)
 order by step_id;
`
	DeleteTestStepsSQL = `
delete from test_steps where project_id = ? and lower(entity_name) = lower(?);
`
)

var (
	InsertExecutionSQL = `
insert into test_executions(execution_id, project_id, entity_name, filters, environment, status,
                            started_at, completed_at, total_scenarios, passed_scenarios,
                            failed_scenarios, skipped_scenarios, execution_time, error_message)
            values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	UpdateExecutionSQL = `
update test_executions
   set status = ?, started_at = ?, completed_at = ?, total_scenarios = ?, passed_scenarios = ?,
       failed_scenarios = ?, skipped_scenarios = ?, execution_time = ?, error_message = ?
 where execution_id = ?;
`
	selectExecutionColumns = `
select execution_id, project_id, entity_name, filters, environment, status, started_at,
       completed_at, total_scenarios, passed_scenarios, failed_scenarios, skipped_scenarios,
       execution_time, error_message
  from test_executions
`
	GetExecutionSQL         = selectExecutionColumns + ` where execution_id = ?;`
	ListExecutionsSQL       = selectExecutionColumns + ` where project_id = ? and lower(entity_name) = lower(?) order by created_at;`
	ListProjectExecutionSQL = selectExecutionColumns + ` where project_id = ? order by created_at;`

	DeleteResultsSQL = `
delete from test_results where execution_id = ?;
`
	InsertResultSQL = `
insert into test_results(execution_id, test_case_id, scenario_name, feature_uri, line, tags,
                         status, duration, steps, error_message, created_at)
            values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	selectResultColumns = `
select r.id, r.execution_id, r.test_case_id, r.scenario_name, r.feature_uri, r.line, r.tags,
       r.status, r.duration, r.steps, r.error_message, r.created_at
  from test_results r
`
	ResultsForExecutionSQL = selectResultColumns + ` where r.execution_id = ? order by r.id;`
	ResultsForTestCaseSQL  = selectResultColumns + `
  join test_executions e on e.execution_id = r.execution_id
 where e.project_id = ? and r.test_case_id = ?
 order by r.created_at, r.id;`
)

var (
	InsertSuiteSQL = `
insert into test_suites(suite_id, project_id, kind, name, entity_name, test_cases, test_sets,
                        status, total, passed, failed, skipped, execution_time, execution_logs, last_run)
            values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	UpdateSuiteSQL = `
update test_suites
   set name = ?, entity_name = ?, test_cases = ?, test_sets = ?, status = ?, total = ?, passed = ?,
       failed = ?, skipped = ?, execution_time = ?, execution_logs = ?, last_run = ?
 where suite_id = ?;
`
	selectSuiteColumns = `
select suite_id, project_id, kind, name, entity_name, test_cases, test_sets, status, total,
       passed, failed, skipped, execution_time, execution_logs, last_run
  from test_suites
`
	GetSuiteSQL   = selectSuiteColumns + ` where suite_id = ?;`
	ListSuitesSQL = selectSuiteColumns + ` where project_id = ? order by kind desc, name;`
)

var (
	SelectBugIDsSQL = `
select bug_id from bugs where project_id = ? and substr(bug_id, 1, ?) = ?;
`
	InsertBugSQL = `
insert into bugs(project_id, bug_id, section, entity_name, title, description, severity, type,
                 priority, status, error_message, error_type, error_code, error_stack,
                 test_case_id, test_case_name, execution_id, created_at, updated_at)
            values(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	UpdateBugStatusSQL = `
update bugs set status = ?, updated_at = ? where project_id = ? and bug_id = ?;
`
	selectBugColumns = `
select project_id, bug_id, section, entity_name, title, description, severity, type, priority,
       status, error_message, error_type, error_code, error_stack, test_case_id,
       test_case_name, execution_id, created_at, updated_at
  from bugs
`
	GetBugSQL            = selectBugColumns + ` where project_id = ? and bug_id = ?;`
	ListBugsSQL          = selectBugColumns + ` where project_id = ? order by created_at, bug_id;`
	ListExecutionBugsSQL = selectBugColumns + ` where execution_id = ? order by created_at, bug_id;`
)
