package api

import (
	"net/http"
)

// Dashboard serves a self-refreshing HTML view of GET /stats.
func Dashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>keyfence</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
        }
        .header {
            text-align: center;
            color: white;
            margin-bottom: 30px;
        }
        .header h1 {
            font-size: 2.5em;
            margin-bottom: 10px;
        }
        .header p {
            opacity: 0.9;
            font-size: 1.1em;
        }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }
        .stat-card {
            background: white;
            border-radius: 12px;
            padding: 25px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
            transition: transform 0.2s;
        }
        .stat-card:hover {
            transform: translateY(-5px);
        }
        .stat-label {
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 10px;
        }
        .stat-value {
            font-size: 2.5em;
            font-weight: bold;
            color: #333;
        }
        .stat-value.success { color: #10b981; }
        .stat-value.danger { color: #ef4444; }
        .stat-value.info { color: #3b82f6; }
        .stat-value.warning { color: #f59e0b; }
        .stat-sublabel {
            margin-top: 8px;
            font-size: 0.9em;
            color: #666;
            font-weight: normal;
        }
        .table-card {
            background: white;
            border-radius: 12px;
            padding: 25px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
        }
        .table-card h2 {
            margin-bottom: 20px;
            color: #333;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th {
            text-align: left;
            padding: 12px;
            background: #f3f4f6;
            color: #666;
            font-weight: 600;
            text-transform: uppercase;
            font-size: 0.85em;
            letter-spacing: 0.5px;
        }
        td {
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        tr:last-child td {
            border-bottom: none;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85em;
            font-weight: 600;
        }
        .badge.success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge.danger {
            background: #fee2e2;
            color: #991b1b;
        }
        .refresh-indicator {
            position: fixed;
            top: 20px;
            right: 20px;
            background: white;
            padding: 10px 20px;
            border-radius: 20px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            font-size: 0.9em;
            color: #666;
        }
        .refresh-indicator.active {
            background: #10b981;
            color: white;
        }
        @keyframes pulse {
            0%, 100% { opacity: 1; }
            50% { opacity: 0.5; }
        }
        .loading {
            animation: pulse 1.5s ease-in-out infinite;
        }
    </style>
</head>
<body>
    <div class="refresh-indicator" id="refreshIndicator">
        Auto-refresh: <span id="countdown">2</span>s
    </div>

    <div class="container">
        <div class="header">
            <h1>keyfence</h1>
            <p>API key admission</p>
        </div>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Total Requests</div>
                <div class="stat-value info" id="totalRequests">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Allowed</div>
                <div class="stat-value success" id="allowedRequests">0</div>
                <div class="stat-sublabel" id="successRate">0% success rate</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Rate Limited</div>
                <div class="stat-value danger" id="rateLimitedRequests">0</div>
                <div class="stat-sublabel" id="limitRate">0% rate limited</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Unauthorized</div>
                <div class="stat-value warning" id="unauthorizedRequests">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Degraded Decisions</div>
                <div class="stat-value warning" id="degradedDecisions">0</div>
                <div class="stat-sublabel" id="droppedEvents">0 usage events dropped</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Active Keys</div>
                <div class="stat-value info" id="uniqueKeys">0</div>
            </div>
        </div>

        <div class="table-card">
            <h2>Top Keys</h2>
            <table>
                <thead>
                    <tr>
                        <th>Key ID</th>
                        <th>Total</th>
                        <th>Allowed</th>
                        <th>Rate Limited</th>
                        <th>Failed</th>
                        <th>Last Seen</th>
                    </tr>
                </thead>
                <tbody id="topKeysTable">
                    <tr>
                        <td colspan="6" style="text-align: center; color: #999;">
                            Loading...
                        </td>
                    </tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        let countdown = 2;
        let countdownInterval;

        async function fetchStats() {
            try {
                const response = await fetch('/stats');
                const data = await response.json();
                updateDashboard(data);
            } catch (error) {
                console.error('Failed to fetch stats:', error);
            }
        }

        function setCount(id, value) {
            document.getElementById(id).textContent = value.toLocaleString();
        }

        function updateDashboard(data) {
            setCount('totalRequests', data.total_requests);
            setCount('allowedRequests', data.allowed_requests);
            setCount('rateLimitedRequests', data.rate_limited_requests);
            setCount('unauthorizedRequests', data.unauthorized_requests);
            setCount('degradedDecisions', data.degraded_decisions);
            setCount('uniqueKeys', data.unique_keys);
            document.getElementById('droppedEvents').textContent =
                data.dropped_usage_events.toLocaleString() + ' usage events dropped';

            let successRate = '0', limitRate = '0';
            if (data.total_requests > 0) {
                successRate = ((data.allowed_requests / data.total_requests) * 100).toFixed(1);
                limitRate = ((data.rate_limited_requests / data.total_requests) * 100).toFixed(1);
            }
            document.getElementById('successRate').textContent = successRate + '% success rate';
            document.getElementById('limitRate').textContent = limitRate + '% rate limited';

            const tbody = document.getElementById('topKeysTable');
            if (data.top_keys && data.top_keys.length > 0) {
                tbody.innerHTML = data.top_keys.map(key => {
                    const lastSeen = new Date(key.last_request_at).toLocaleTimeString();
                    return ` + "`" + `
                        <tr>
                            <td><strong>${key.key_id}</strong></td>
                            <td>${key.total_requests.toLocaleString()}</td>
                            <td><span class="badge success">${key.allowed_requests}</span></td>
                            <td><span class="badge danger">${key.rate_limited_requests}</span></td>
                            <td>${key.failed_requests}</td>
                            <td>${lastSeen}</td>
                        </tr>
                    ` + "`" + `;
                }).join('');
            } else {
                tbody.innerHTML = ` + "`" + `
                    <tr>
                        <td colspan="6" style="text-align: center; color: #999;">
                            No requests yet
                        </td>
                    </tr>
                ` + "`" + `;
            }
        }

        function startCountdown() {
            countdown = 2;
            document.getElementById('countdown').textContent = countdown;
            if (countdownInterval) clearInterval(countdownInterval);
            countdownInterval = setInterval(() => {
                countdown--;
                document.getElementById('countdown').textContent = countdown;
                if (countdown <= 0) {
                    countdown = 2;
                }
            }, 1000);
        }

        fetchStats();
        startCountdown();
        setInterval(() => {
            fetchStats();
            startCountdown();
        }, 2000);
    </script>
</body>
</html>`
